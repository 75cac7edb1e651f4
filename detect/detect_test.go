package detect

import (
	"image"
	"testing"
)

func TestFakeStrategyDetectsWithinBounds(t *testing.T) {
	s := NewFakeStrategy(1)
	img := image.NewGray(image.Rect(0, 0, 100, 80))
	p, ok, err := s.Detect(img)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a detection")
	}
	if p.Center.X <= 0 || p.Center.X >= 100 || p.Center.Y <= 0 || p.Center.Y >= 80 {
		t.Fatalf("center %+v outside image bounds", p.Center)
	}
}

func TestFakeStrategyEmptyImage(t *testing.T) {
	s := NewFakeStrategy(1)
	img := image.NewGray(image.Rect(0, 0, 0, 0))
	_, ok, err := s.Detect(img)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected no detection for a degenerate image")
	}
}

func TestApplyAutoParamsStored(t *testing.T) {
	s := NewFakeStrategy(1)
	s.ApplyAutoParams(map[string]float64{"minAxis": 10})
	if s.params["minAxis"] != 10 {
		t.Fatal("expected ApplyAutoParams to store the given params")
	}
}

var _ Strategy = (*FakeStrategy)(nil)
var _ Tunable = (*FakeStrategy)(nil)
