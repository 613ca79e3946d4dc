// Package document holds the editor's block tree as the persistence layer sees it:
// an ordered list of opaque JSON blocks.
package document

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// Block is one editor block. Its structure belongs to the editor; only the
// optional "id", "props" and "children" members are ever looked at.
type Block = json.RawMessage

type Document []Block

// Clone returns a deep copy that shares no byte slices with d.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for i, b := range d {
		out[i] = bytes.Clone(b)
	}
	return out
}

// Equal reports whether a and b hold structurally equal blocks, ignoring
// whitespace and object key order.
func Equal(a, b Document) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !blockEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func blockEqual(a, b Block) bool {
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}

// BlockID returns the editor-assigned id of a block, or "" when it has none.
func BlockID(b Block) string {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return ""
	}
	return head.ID
}

// FindBlock returns the block with the given id, searching nested children.
func FindBlock(d Document, id string) (Block, bool) {
	if id == "" {
		return nil, false
	}
	for _, raw := range d {
		if BlockID(raw) == id {
			return raw, true
		}
		var nested struct {
			Children Document `json:"children"`
		}
		if err := json.Unmarshal(raw, &nested); err != nil {
			continue
		}
		if b, ok := FindBlock(nested.Children, id); ok {
			return b, true
		}
	}
	return nil, false
}

// UpdateBlockProps merges props into the "props" member of the block with the
// given id, searching nested children as well. The returned document is a
// new value; d is left untouched. ok is false when no block matched.
func UpdateBlockProps(d Document, id string, props map[string]any) (Document, bool) {
	if id == "" {
		return d, false
	}
	out, ok := updateBlocks(d.Clone(), id, props)
	if !ok {
		return d, false
	}
	return out, true
}

func updateBlocks(blocks Document, id string, props map[string]any) (Document, bool) {
	for i, raw := range blocks {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			continue
		}

		if BlockID(raw) == id {
			merged := map[string]any{}
			if existing, ok := fields["props"]; ok {
				if err := json.Unmarshal(existing, &merged); err != nil || merged == nil {
					merged = map[string]any{}
				}
			}
			for k, v := range props {
				merged[k] = v
			}
			encoded, err := json.Marshal(merged)
			if err != nil {
				return blocks, false
			}
			fields["props"] = encoded
			if blocks[i], err = json.Marshal(fields); err != nil {
				return blocks, false
			}
			return blocks, true
		}

		children, ok := fields["children"]
		if !ok {
			continue
		}
		var nested Document
		if err := json.Unmarshal(children, &nested); err != nil || len(nested) == 0 {
			continue
		}
		nested, found := updateBlocks(nested, id, props)
		if !found {
			continue
		}
		encoded, err := json.Marshal(nested)
		if err != nil {
			return blocks, false
		}
		fields["children"] = encoded
		if blocks[i], err = json.Marshal(fields); err != nil {
			return blocks, false
		}
		return blocks, true
	}
	return blocks, false
}

// Welcome is the document a fresh editor starts with.
func Welcome() Document {
	return Document{
		Block(`{"type":"heading","props":{"level":1},"content":"Welcome"}`),
		Block(`{"type":"paragraph","content":""}`),
	}
}
