package xmlparse

import (
	"errors"
	"strings"
	"testing"
)

const minimalDoc = `<?xml version="1.0" encoding="UTF-8"?>
<CadExport xmlns="urn:cad:export:call">
  <Call>
    <CallNumber>232</CallNumber>
    <NatureOfCall>STRUCTURE FIRE</NatureOfCall>
  </Call>
  <Narratives>
    <Narrative><Text>first</Text></Narrative>
    <Narrative><Text>second</Text></Narrative>
  </Narratives>
</CadExport>`

func TestParseBuildsTree(t *testing.T) {
	root, err := Parse([]byte(minimalDoc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if root.Name != "CadExport" || root.Space != Namespace {
		t.Fatalf("root = %s (%s)", root.Name, root.Space)
	}
	call := root.Child("Call")
	if call == nil {
		t.Fatal("missing Call child")
	}
	if got, ok := call.ChildText("CallNumber"); !ok || got != "232" {
		t.Fatalf("CallNumber = %q, %v", got, ok)
	}
	if got, ok := call.ChildText("NatureOfCall"); !ok || got != "STRUCTURE FIRE" {
		t.Fatalf("NatureOfCall = %q, %v", got, ok)
	}
	narratives := root.Child("Narratives").ChildrenNamed("Narrative")
	if len(narratives) != 2 {
		t.Fatalf("narratives = %d", len(narratives))
	}
	if text, _ := narratives[0].ChildText("Text"); text != "first" {
		t.Fatalf("order not preserved: %q", text)
	}
}

func TestParseDistinguishesAbsentFromEmpty(t *testing.T) {
	doc := `<CadExport xmlns="urn:cad:export:call"><Call><CallerName></CallerName></Call></CadExport>`
	root, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	call := root.Child("Call")
	if v, ok := call.ChildText("CallerName"); !ok || v != "" {
		t.Fatalf("present-but-empty element: %q, %v", v, ok)
	}
	if _, ok := call.ChildText("CallerPhone"); ok {
		t.Fatal("absent element reported as present")
	}
}

func TestParseRejectsDoctype(t *testing.T) {
	doc := `<?xml version="1.0"?>
<!DOCTYPE CadExport [<!ENTITY xxe SYSTEM "file:///etc/passwd">]>
<CadExport xmlns="urn:cad:export:call"><Call><CallerName>&xxe;</CallerName></Call></CadExport>`
	_, err := Parse([]byte(doc))
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if !strings.Contains(perr.Reason, "doctype") {
		t.Fatalf("reason = %q", perr.Reason)
	}
}

func TestParseRejectsUndefinedEntity(t *testing.T) {
	// Without a DOCTYPE there is nowhere to define an entity, so a reference
	// must fail rather than resolve to anything.
	doc := `<CadExport xmlns="urn:cad:export:call"><Call><CallerName>&xxe;</CallerName></Call></CadExport>`
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("expected parse failure for undefined entity")
	}
}

func TestParseRejectsWrongRoot(t *testing.T) {
	cases := []string{
		`<Export xmlns="urn:cad:export:call"/>`,
		`<CadExport xmlns="urn:other"/>`,
		`<CadExport/>`,
	}
	for _, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("expected rejection of %s", doc)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		``,
		`<CadExport xmlns="urn:cad:export:call"><Call></CadExport>`,
		`not xml at all`,
	}
	for _, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("expected parse failure for %q", doc)
		}
	}
}
