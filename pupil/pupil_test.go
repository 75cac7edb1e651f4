package pupil

import (
	"math"
	"testing"
)

func TestInvalidSentinel(t *testing.T) {
	p := Invalid()
	if p.Valid(-2) {
		t.Fatal("sentinel pupil must be invalid even with widened tolerance")
	}
	if p.Valid(0) {
		t.Fatal("sentinel pupil must be invalid at zero tolerance")
	}
}

func TestValidTolerance(t *testing.T) {
	p := Pupil{Size: Size{Width: 10, Height: 8}}
	if !p.Valid(0) {
		t.Fatal("expected positive-axis pupil to be valid")
	}
	if !p.Valid(-2) {
		t.Fatal("expected valid at widened tolerance too")
	}
	degenerate := Pupil{Size: Size{Width: 0, Height: 0}}
	if degenerate.Valid(-2) {
		t.Fatal("zero-axis pupil must stay invalid even at tolerance -2, per spec.md §8")
	}
}

func TestMajorMinorAxis(t *testing.T) {
	p := Pupil{Size: Size{Width: 10, Height: 6}}
	if p.MajorAxis() != 10 {
		t.Fatalf("major axis = %v, want 10", p.MajorAxis())
	}
	if p.MinorAxis() != 6 {
		t.Fatalf("minor axis = %v, want 6", p.MinorAxis())
	}
}

func TestDiameterIsAxisMean(t *testing.T) {
	p := Pupil{Size: Size{Width: 10, Height: 6}}
	if got, want := p.Diameter(), 8.0; got != want {
		t.Fatalf("diameter = %v, want %v", got, want)
	}
}

func TestCircumferenceCircleCase(t *testing.T) {
	// A circle of diameter d has circumference pi*d.
	p := Pupil{Size: Size{Width: 10, Height: 10}}
	want := math.Pi * 10
	if got := p.Circumference(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("circumference = %v, want %v", got, want)
	}
}

func TestAreaCircleCase(t *testing.T) {
	p := Pupil{Size: Size{Width: 10, Height: 10}}
	want := math.Pi * 25
	if got := p.Area(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("area = %v, want %v", got, want)
	}
}

func TestTranslate(t *testing.T) {
	p := Pupil{Center: Point{X: 1, Y: 2}}
	q := p.Translate(10, -5)
	if q.Center.X != 11 || q.Center.Y != -3 {
		t.Fatalf("translated center = %+v", q.Center)
	}
	if p.Center.X != 1 {
		t.Fatal("Translate must not mutate the receiver")
	}
}
