package document

import (
	"encoding/json"
	"testing"
)

func TestEqual(t *testing.T) {
	a := Document{Block(`{"type":"paragraph","content":"x","props":{"a":1,"b":2}}`)}
	b := Document{Block(`{ "props": {"b":2, "a":1}, "content":"x", "type":"paragraph" }`)}
	c := Document{Block(`{"type":"paragraph","content":"y"}`)}

	if !Equal(a, b) {
		t.Error("Expected key order and whitespace to be ignored")
	}
	if Equal(a, c) {
		t.Error("Expected different content to differ")
	}
	if Equal(a, append(a.Clone(), c[0])) {
		t.Error("Expected different lengths to differ")
	}
	if Equal(Document{Block(`{`)}, Document{Block(`{`)}) {
		t.Error("Expected invalid blocks never to compare equal")
	}
}

func TestClone(t *testing.T) {
	orig := Document{Block(`{"type":"paragraph"}`)}
	clone := orig.Clone()
	clone[0][2] = 'X'

	if string(orig[0]) != `{"type":"paragraph"}` {
		t.Errorf("Clone shares memory with original: %s", orig[0])
	}
	if Document(nil).Clone() != nil {
		t.Error("Expected clone of nil to be nil")
	}
}

func TestBlockID(t *testing.T) {
	if got := BlockID(Block(`{"id":"abc","type":"paragraph"}`)); got != "abc" {
		t.Errorf("Expected %q, got %q", "abc", got)
	}
	if got := BlockID(Block(`{"type":"paragraph"}`)); got != "" {
		t.Errorf("Expected empty id, got %q", got)
	}
	if got := BlockID(Block(`[1,2]`)); got != "" {
		t.Errorf("Expected empty id for non-object, got %q", got)
	}
}

func TestUpdateBlockProps(t *testing.T) {
	doc := Document{
		Block(`{"id":"p1","type":"paragraph","content":"x"}`),
		Block(`{"id":"card","type":"projectCard","props":{"title":"Old","imageUrl":"a.png"}}`),
		Block(`{"id":"list","type":"bulletListItem","children":[{"id":"nested","type":"projectCard","props":{"title":"Inner"}}]}`),
	}

	t.Run("Top level block", func(t *testing.T) {
		out, ok := UpdateBlockProps(doc, "card", map[string]any{"title": "New"})
		if !ok {
			t.Fatal("Expected block to be found")
		}

		var block struct {
			Props map[string]any `json:"props"`
		}
		if err := json.Unmarshal(out[1], &block); err != nil {
			t.Fatalf("Failed to decode block: %v", err)
		}
		if block.Props["title"] != "New" || block.Props["imageUrl"] != "a.png" {
			t.Errorf("Unexpected props after merge: %v", block.Props)
		}
		if BlockID(doc[1]) != "card" || string(doc[1]) == string(out[1]) {
			t.Error("Expected original document to be left untouched")
		}
	})

	t.Run("Nested block", func(t *testing.T) {
		out, ok := UpdateBlockProps(doc, "nested", map[string]any{"title": "Changed"})
		if !ok {
			t.Fatal("Expected nested block to be found")
		}

		var list struct {
			Children []struct {
				Props map[string]any `json:"props"`
			} `json:"children"`
		}
		if err := json.Unmarshal(out[2], &list); err != nil {
			t.Fatalf("Failed to decode block: %v", err)
		}
		if len(list.Children) != 1 || list.Children[0].Props["title"] != "Changed" {
			t.Errorf("Unexpected nested props: %+v", list.Children)
		}
	})

	t.Run("Block without props", func(t *testing.T) {
		out, ok := UpdateBlockProps(doc, "p1", map[string]any{"level": 2})
		if !ok {
			t.Fatal("Expected block to be found")
		}
		if !json.Valid(out[0]) {
			t.Errorf("Expected valid JSON, got %s", out[0])
		}
	})

	t.Run("Unknown block", func(t *testing.T) {
		out, ok := UpdateBlockProps(doc, "missing", map[string]any{"title": "x"})
		if ok {
			t.Error("Expected unknown id not to match")
		}
		if !Equal(out, doc) {
			t.Error("Expected document unchanged for unknown id")
		}
	})
}

func TestFindBlock(t *testing.T) {
	doc := Document{
		Block(`{"id":"p1","type":"paragraph"}`),
		Block(`{"id":"list","type":"bulletListItem","children":[{"id":"nested","type":"projectCard"}]}`),
		Block(`"not an object"`),
	}

	tests := []struct {
		id   string
		want bool
	}{
		{"p1", true},
		{"nested", true},
		{"missing", false},
		{"", false},
	}
	for _, tt := range tests {
		b, ok := FindBlock(doc, tt.id)
		if ok != tt.want {
			t.Errorf("FindBlock(%q) found = %v, want %v", tt.id, ok, tt.want)
		}
		if ok && BlockID(b) != tt.id {
			t.Errorf("FindBlock(%q) returned block %q", tt.id, BlockID(b))
		}
	}
}
