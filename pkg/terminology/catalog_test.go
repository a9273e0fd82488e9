package terminology

import "testing"

func TestLookupAcrossCodeSystems(t *testing.T) {
	catalog := DefaultCatalog()

	cases := map[string]string{
		"C71.9":     "Glioblastoma",
		"393563007": "Glioblastoma",
		"24590-2":   "MRI of brain",
	}
	for code, display := range cases {
		concept, ok := catalog.Lookup(code)
		if !ok {
			t.Fatalf("expected %s to resolve", code)
		}
		if concept.Display != display {
			t.Fatalf("%s display = %s, want %s", code, concept.Display, display)
		}
	}

	if _, ok := catalog.Lookup("Z99.99"); ok {
		t.Fatal("unknown code must not resolve")
	}
	if _, ok := catalog.Lookup(""); ok {
		t.Fatal("empty code must not resolve")
	}
}

func TestAnnotate(t *testing.T) {
	catalog := DefaultCatalog()
	annotated := catalog.Annotate([]string{"C71.9", "Z99.99"})
	if len(annotated) != 2 {
		t.Fatalf("got %d annotations, want 2", len(annotated))
	}
	if annotated[0] != "C71.9 (Glioblastoma)" {
		t.Fatalf("known code annotation = %q", annotated[0])
	}
	if annotated[1] != "Z99.99" {
		t.Fatalf("unknown code must pass through, got %q", annotated[1])
	}
}
