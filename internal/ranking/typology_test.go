package ranking

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestParseTypologySpec(t *testing.T) {
	cases := []struct {
		spec string
		name string
		desc bool
	}{
		{"popularity", "popularity", false},
		{"-popularity", "popularity", true},
		{" -recency ", "recency", true},
		{"-", "", true},
		{"", "", false},
	}
	for _, tc := range cases {
		name, desc := ParseTypologySpec(tc.spec)
		if name != tc.name || desc != tc.desc {
			t.Fatalf("ParseTypologySpec(%q): want=(%q,%v) got=(%q,%v)", tc.spec, tc.name, tc.desc, name, desc)
		}
	}
}

func TestTypologyNamesSorted(t *testing.T) {
	r, err := newTypologyResolver(Typologies{
		"recency":    rankingOf().fn,
		"alpha":      rankingOf().fn,
		"popularity": rankingOf().fn,
	})
	if err != nil {
		t.Fatalf("newTypologyResolver: %v", err)
	}
	names := r.Names()
	if got := strings.Join(names, ","); got != "alpha,popularity,recency" {
		t.Fatalf("Names: want=%q got=%q", "alpha,popularity,recency", got)
	}
	names[0] = "mutated"
	if r.Names()[0] != "alpha" {
		t.Fatalf("Names: caller mutation leaked into resolver")
	}
	if err := r.Validate("missing"); !errors.Is(err, ErrTypologyNotImplemented) {
		t.Fatalf("Validate(missing): want ErrTypologyNotImplemented got %v", err)
	}
	if _, err := r.get("alpha"); err != nil {
		t.Fatalf("get(alpha): %v", err)
	}
}

func TestTypologyNameTooLong(t *testing.T) {
	_, err := newTypologyResolver(Typologies{strings.Repeat("x", maxTypologyLength+1): rankingOf().fn})
	if !errors.Is(err, ErrInvalidTypology) {
		t.Fatalf("want ErrInvalidTypology got %v", err)
	}
}

type slug string

func TestFormatEntityID(t *testing.T) {
	u := uuid.MustParse("6f1c7f4e-1b7e-4a43-9f0e-3d1f6f0e2a11")
	ok := []struct {
		in   any
		want string
	}{
		{int64(42), "42"},
		{7, "7"},
		{int32(-3), "-3"},
		{uint(5), "5"},
		{uint64(18446744073709551615), "18446744073709551615"},
		{"abc", "abc"},
		{slug("hello-world"), "hello-world"},
		{int16(12), "12"},
		{u, u.String()},
	}
	for _, tc := range ok {
		got, err := FormatEntityID(tc.in)
		if err != nil {
			t.Fatalf("FormatEntityID(%v): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("FormatEntityID(%v): want=%q got=%q", tc.in, tc.want, got)
		}
	}

	bad := []any{nil, 1.5, "", strings.Repeat("9", maxEntityIDLength+1), []byte("x")}
	for _, in := range bad {
		if _, err := FormatEntityID(in); !errors.Is(err, ErrInvalidIdentifier) {
			t.Fatalf("FormatEntityID(%v): want ErrInvalidIdentifier got %v", in, err)
		}
	}
}
