package narrative

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/wfunc/storyserver/world"
)

// Parse decodes a generator reply of the form
//
//	{"story": "...", "statsUpdate": {"STR": 1}, "inventoryUpdate": ["rope"], "moneyUpdate": 5}
//
// Only the enumerated fields are read: unknown stats, non-numeric values and
// non-string items are dropped. A reply without a story is malformed.
func Parse(raw string) (world.Result, error) {
	raw = stripFence(raw)
	if !gjson.Valid(raw) {
		return world.Result{}, fmt.Errorf("%w: invalid json", ErrMalformedResponse)
	}

	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return world.Result{}, fmt.Errorf("%w: expected an object", ErrMalformedResponse)
	}

	story := doc.Get("story")
	if story.Type != gjson.String || strings.TrimSpace(story.String()) == "" {
		return world.Result{}, fmt.Errorf("%w: missing story", ErrMalformedResponse)
	}

	res := world.Result{Story: strings.TrimSpace(story.String())}

	doc.Get("statsUpdate").ForEach(func(key, value gjson.Result) bool {
		stat, ok := world.ParseStat(key.String())
		if ok && value.Type == gjson.Number {
			res.Delta.Stats.AddStat(stat, value.Float())
		}
		return true
	})

	inv := doc.Get("inventoryUpdate")
	switch {
	case inv.IsArray():
		for _, item := range inv.Array() {
			if item.Type == gjson.String && strings.TrimSpace(item.String()) != "" {
				res.Delta.Inventory = append(res.Delta.Inventory, strings.TrimSpace(item.String()))
			}
		}
	case inv.Type == gjson.String && strings.TrimSpace(inv.String()) != "":
		res.Delta.Inventory = []string{strings.TrimSpace(inv.String())}
	}

	if money := doc.Get("moneyUpdate"); money.Type == gjson.Number {
		res.Delta.Money = money.Float()
	}
	return res, nil
}

// stripFence removes a surrounding ```json ... ``` block, which chat models
// often add even when asked for bare JSON.
func stripFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```")
	if nl := strings.IndexByte(raw, '\n'); nl >= 0 {
		raw = raw[nl+1:]
	}
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}
