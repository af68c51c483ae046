package model

import "testing"

func TestPropertiesSortedAndDedup(t *testing.T) {
	p := NewProperties(
		Property{Key: "name", Value: String("river")},
		Property{Key: "class", Value: String("waterway")},
		Property{Key: "name", Value: String("overwritten")},
	)

	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", p.Len())
	}
	if p.At(0).Key != "class" || p.At(1).Key != "name" {
		t.Fatalf("expected sorted keys [class, name], got [%s, %s]", p.At(0).Key, p.At(1).Key)
	}
	v, ok := p.Get("name")
	if !ok {
		t.Fatal("Get(name) not found")
	}
	if s, _ := v.AsString(); s != "overwritten" {
		t.Errorf("Get(name) = %q, want %q (last write wins)", s, "overwritten")
	}
}

func TestPropertiesGetContains(t *testing.T) {
	p := NewProperties(Property{Key: "height", Value: Number(10)})

	if !p.Contains("height") {
		t.Error("Contains(height) = false, want true")
	}
	if p.Contains("width") {
		t.Error("Contains(width) = true, want false")
	}
	if _, ok := p.Get("width"); ok {
		t.Error("Get(width) ok = true, want false")
	}
}

func TestPropertiesSetMaintainsOrder(t *testing.T) {
	var p Properties
	p.Set("b", Number(2))
	p.Set("a", Number(1))
	p.Set("c", Number(3))
	p.Set("a", Number(100)) // overwrite

	if p.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", p.Len())
	}
	want := []string{"a", "b", "c"}
	for i, k := range want {
		if p.At(i).Key != k {
			t.Fatalf("At(%d).Key = %q, want %q", i, p.At(i).Key, k)
		}
	}
	v, _ := p.Get("a")
	if n, _ := v.AsNumber(); n != 100 {
		t.Errorf("Get(a) = %v, want 100", n)
	}
}

func TestPropertiesBuilder(t *testing.T) {
	var b PropertiesBuilder
	b.Add("z", String("last"))
	b.Add("a", String("first"))
	b.Add("z", String("overwritten"))

	p := b.Build()
	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", p.Len())
	}
	v, _ := p.Get("z")
	if s, _ := v.AsString(); s != "overwritten" {
		t.Errorf("Get(z) = %q, want %q", s, "overwritten")
	}
}
