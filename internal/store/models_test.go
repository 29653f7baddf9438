package store

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestLinkMarshalsByState(t *testing.T) {
	project := Project{
		ID:    "p1",
		Name:  "study",
		Codes: []Link[Code]{Ref[Code]("c1"), Resolved(Code{ID: "c2", Name: "theme", Color: 3})},
	}

	body, err := json.Marshal(project)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(body), `"codes":["c1",{"_id":"c2","name":"theme","color":3}]`) {
		t.Fatalf("unexpected encoding: %s", body)
	}

	detached, err := json.Marshal(project.Detached())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(detached), `"codes":["c1","c2"]`) {
		t.Fatalf("detached project kept documents: %s", detached)
	}
}

func TestLinkUnmarshalAcceptsIDOrDocument(t *testing.T) {
	var file TextFile
	payload := `{"_id":"f1","name":"a","text":"x","coding_versions":["cv1",{"_id":"cv2","name":"b","codings":[]}]}`
	if err := json.Unmarshal([]byte(payload), &file); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(file.CodingVersions) != 2 {
		t.Fatalf("expected 2 links, got %d", len(file.CodingVersions))
	}
	if file.CodingVersions[0].IsResolved() || file.CodingVersions[0].ID() != "cv1" {
		t.Fatalf("first link should be unresolved cv1: %+v", file.CodingVersions[0])
	}
	version, ok := file.CodingVersions[1].Document()
	if !ok || version.Name != "b" || file.CodingVersions[1].ID() != "cv2" {
		t.Fatalf("second link should be resolved cv2: %+v", version)
	}
}

func TestLinkUnmarshalRejectsDocumentWithoutID(t *testing.T) {
	var link Link[Code]
	if err := json.Unmarshal([]byte(`{"name":"x"}`), &link); err == nil {
		t.Fatal("expected Unmarshal() to fail for a document without _id")
	}
}

func TestRemoveLinkSplicesEveryMatch(t *testing.T) {
	links := []Link[Note]{Ref[Note]("a"), Ref[Note]("b"), Ref[Note]("a")}
	out, removed := RemoveLink(links, "a")
	if !removed {
		t.Fatal("expected removed = true")
	}
	if ids := LinkIDs(out); len(ids) != 1 || ids[0] != "b" {
		t.Fatalf("unexpected links after remove: %v", ids)
	}

	empty, removed := RemoveLink(out, "b")
	if removed != true || empty == nil || len(empty) != 0 {
		t.Fatalf("expected an empty non-nil list, got %#v", empty)
	}
	if _, removed := RemoveLink(empty, "zzz"); removed {
		t.Fatal("expected removed = false for a missing id")
	}
}

func TestSplitProjectCollectsNestedChildren(t *testing.T) {
	payload := `{
		"_id": "p1",
		"name": "study",
		"codes": [{"_id": "c1", "name": "theme", "color": 1}],
		"notes": [{"_id": "n1", "title": "memo", "text": "", "text_lines": {}}],
		"text_files": [{
			"_id": "f1", "name": "interview", "text": "hello",
			"coding_versions": [{"_id": "cv1", "name": "pass", "codings": [{"code_id": "c1", "start": 0, "length": 5}]}]
		}]
	}`
	var project Project
	if err := json.Unmarshal([]byte(payload), &project); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	tree := SplitProject(project)
	if len(tree.Codes) != 1 || len(tree.Notes) != 1 || len(tree.TextFiles) != 1 || len(tree.CodingVersions) != 1 {
		t.Fatalf("unexpected tree: %+v", tree)
	}
	if tree.TextFiles[0].CodingVersions[0].IsResolved() {
		t.Fatal("text file in tree should hold detached coding version links")
	}
	if tree.Project.Codes[0].IsResolved() {
		t.Fatal("project in tree should hold detached links")
	}
	if tree.CodingVersions[0].Codings[0].CodeID != "c1" {
		t.Fatalf("coding lost: %+v", tree.CodingVersions[0])
	}
}
