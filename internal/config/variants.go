package config

import (
	"fmt"
	"sort"
	"strings"
)

// Variant is one concrete run of a possibly multi-run configuration.
type Variant struct {
	Index   int
	Pre     []string
	Persona map[string]string
}

// Label describes what distinguishes the variant.
func (v Variant) Label() string {
	if len(v.Persona) == 0 {
		return strings.Join(v.Pre, ",")
	}
	keys := make([]string, 0, len(v.Persona))
	for k := range v.Persona {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + v.Persona[k]
	}
	return strings.Join(parts, ",")
}

// Variants expands the configuration into runs. An empty alternatives list
// in multi_dialogs_pre stands for every profile dialog, which profiles
// supplies. Demographic alternatives expand to their cartesian product with
// categories in sorted order.
func (c *Config) Variants(profiles func() []string) ([]Variant, error) {
	switch {
	case len(c.MultiDialogsPre) > 0:
		return c.dialogVariants(profiles)
	case len(c.MultiDemography) > 0:
		return c.demographyVariants(), nil
	default:
		return []Variant{{Pre: []string(c.DialogsPre), Persona: c.Demographics}}, nil
	}
}

func (c *Config) dialogVariants(profiles func() []string) ([]Variant, error) {
	slot := -1
	for i, s := range c.MultiDialogsPre {
		if s.Multi {
			if slot >= 0 {
				return nil, ErrMultiSlots
			}
			slot = i
		}
	}
	if slot < 0 {
		return nil, ErrMultiSlots
	}

	options := c.MultiDialogsPre[slot].Options
	if len(options) == 0 && profiles != nil {
		options = profiles()
	}
	if len(options) == 0 {
		return nil, fmt.Errorf("multi_dialogs_pre: no alternatives for slot %d", slot)
	}

	variants := make([]Variant, len(options))
	for i, opt := range options {
		pre := make([]string, len(c.MultiDialogsPre))
		for j, s := range c.MultiDialogsPre {
			if j == slot {
				pre[j] = opt
			} else if len(s.Options) > 0 {
				pre[j] = s.Options[0]
			}
		}
		variants[i] = Variant{Index: i, Pre: pre, Persona: c.Demographics}
	}
	return variants, nil
}

func (c *Config) demographyVariants() []Variant {
	keys := make([]string, 0, len(c.MultiDemography))
	for k := range c.MultiDemography {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []map[string]string{{}}
	for _, k := range keys {
		var next []map[string]string
		for _, base := range combos {
			for _, v := range c.MultiDemography[k] {
				m := make(map[string]string, len(base)+1)
				for bk, bv := range base {
					m[bk] = bv
				}
				m[k] = v
				next = append(next, m)
			}
		}
		combos = next
	}

	variants := make([]Variant, len(combos))
	for i, p := range combos {
		variants[i] = Variant{Index: i, Pre: []string(c.DialogsPre), Persona: p}
	}
	return variants
}
