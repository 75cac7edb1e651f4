package roi

import (
	"image"
	"testing"
)

func TestDiscretizeExample(t *testing.T) {
	// spec.md §8 scenario 1: {0.35,0.35,0.30,0.30} on 1280x1024 -> (448,358,384,307)
	r := Rational{X: 0.35, Y: 0.35, W: 0.30, H: 0.30}
	rect, err := r.Discretize(image.Point{X: 1280, Y: 1024})
	if err != nil {
		t.Fatal(err)
	}
	if rect.Min.X != 448 || rect.Min.Y != 358 {
		t.Fatalf("origin = %v, want (448,358)", rect.Min)
	}
	if rect.Dx() != 384 || rect.Dy() != 307 {
		t.Fatalf("size = %dx%d, want 384x307", rect.Dx(), rect.Dy())
	}
}

func TestDiscretizeOutOfBounds(t *testing.T) {
	cases := []Rational{
		{X: 0.9, Y: 0, W: 0.5, H: 0.5},
		{X: 0, Y: 0, W: 0, H: 0.5},
		{X: -0.1, Y: 0, W: 0.5, H: 0.5},
	}
	for _, r := range cases {
		if _, err := r.Discretize(image.Point{X: 640, Y: 480}); err != ErrOutOfBounds {
			t.Fatalf("ROI %+v: err = %v, want ErrOutOfBounds", r, err)
		}
	}
}

func TestSplitHorizontalNonOverlapping(t *testing.T) {
	left, right := SplitHorizontal()
	ok, err := NonOverlapping([]Assignment{
		{Role: RoleA, ROI: left},
		{Role: RoleB, ROI: right},
	}, image.Point{X: 640, Y: 480})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("horizontal split halves must not overlap")
	}
}

func TestOverlappingDetected(t *testing.T) {
	a := Rational{X: 0, Y: 0, W: 0.6, H: 1}
	b := Rational{X: 0.4, Y: 0, W: 0.6, H: 1}
	ok, err := NonOverlapping([]Assignment{
		{Role: RoleA, ROI: a},
		{Role: RoleB, ROI: b},
	}, image.Point{X: 640, Y: 480})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("overlapping ROIs must be reported as overlapping")
	}
}
