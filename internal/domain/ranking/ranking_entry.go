package ranking

// RankingEntry places one object at one position of one typology.
// Rows with Usable=false belong to a generation still being built and are
// never returned by reads.
type RankingEntry struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	EntityType string `gorm:"column:entity_type;size:64;not null;index:idx_ranking_entry_lookup,priority:1" json:"entity_type"`
	EntityID   string `gorm:"column:entity_id;size:64;not null;index:idx_ranking_entry_entity" json:"entity_id"`
	Typology   string `gorm:"column:typology;size:64;not null;index:idx_ranking_entry_lookup,priority:2" json:"typology"`
	Usable     bool   `gorm:"column:usable;not null;index:idx_ranking_entry_lookup,priority:3" json:"usable"`
	Position   int64  `gorm:"column:position;not null;index:idx_ranking_entry_lookup,priority:4" json:"position"`
}

func (RankingEntry) TableName() string { return "ranking_entry" }
