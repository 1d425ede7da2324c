package lang

import "encoding/json"

// MarshalJSON implements json.Marshaler for Document.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.ToMap())
}

// ToMap converts the document to a native Go map structure, suitable
// for JSON or YAML encoding. Items are grouped by kind; multiple
// blocks of the same kind merge in source order.
func (d *Document) ToMap() map[string]any {
	result := make(map[string]any)

	constants := make(map[string]any)
	regions := make(map[string]any)
	segments := make(map[string]any)
	sections := make(map[string]any)
	aliases := make(map[string]any)

	var discards []any

	for _, item := range d.Items {
		switch item := item.(type) {
		case *ConstDecl:
			constants[item.Name] = constToNative(item)

		case *MemoryMap:
			for _, r := range item.Regions {
				regions[r.Name] = regionToNative(r)
			}

		case *ElfSegments:
			for _, s := range item.Segments {
				segments[s.Name] = map[string]any{
					"type":        s.Type.String(),
					"permissions": permissionsToNative(s.Permissions),
				}
			}

		case *Section:
			sections[item.Name] = sectionToNative(item)

		case *Discard:
			for _, input := range item.Inputs {
				discards = append(discards, inputToNative(input))
			}

		case *ProvideSymbols:
			for _, a := range item.Aliases {
				aliases[a.Name] = a.Target
			}
		}
	}

	if len(constants) > 0 {
		result["constants"] = constants
	}

	if len(regions) > 0 {
		result["memory_map"] = regions
	}

	if len(segments) > 0 {
		result["elf_segments"] = segments
	}

	if len(sections) > 0 {
		result["sections"] = sections
	}

	if len(discards) > 0 {
		result["discard"] = discards
	}

	if len(aliases) > 0 {
		result["provide_symbols"] = aliases
	}

	return result
}

func constToNative(c *ConstDecl) any {
	if !c.Public && c.Type == "" {
		return exprToNative(c.Value)
	}

	m := map[string]any{"value": exprToNative(c.Value)}

	if c.Public {
		m["public"] = true
	}

	if c.Type != "" {
		m["type"] = c.Type
	}

	return m
}

func regionToNative(r *Region) any {
	m := map[string]any{
		"permissions": permissionsToNative(r.Permissions),
	}

	if r.Start != nil {
		m["start"] = exprToNative(r.Start)
	}

	if r.Size != nil {
		m["size"] = exprToNative(r.Size)
	}

	return m
}

func permissionsToNative(p Permissions) []any {
	flags := make([]any, 0, 3)

	if p.Read {
		flags = append(flags, "Read")
	}

	if p.Write {
		flags = append(flags, "Write")
	}

	if p.Execute {
		flags = append(flags, "Execute")
	}

	return flags
}

func sectionToNative(s *Section) any {
	m := make(map[string]any)

	if s.PlaceIn != "" {
		m["place_in"] = s.PlaceIn
	}

	if s.LoadFrom != "" {
		m["load_from"] = s.LoadFrom
	}

	if s.OutputTo != "" {
		m["output_to"] = s.OutputTo
	}

	if s.Permissions != nil {
		m["permissions"] = permissionsToNative(*s.Permissions)
	}

	if s.OccupiesFileSpace != nil {
		m["occupies_file_space"] = *s.OccupiesFileSpace
	}

	if s.Address != nil {
		m["address"] = addressToNative(s.Address)
	}

	if s.FilePosition != nil {
		if s.FilePosition.Origin {
			m["file_position"] = "origin"
		} else {
			m["file_position"] = exprToNative(s.FilePosition.Start)
		}
	}

	if len(s.Contents) > 0 {
		contents := make([]any, len(s.Contents))
		for i, item := range s.Contents {
			contents[i] = contentsItemToNative(item)
		}

		m["contents"] = contents
	}

	if len(s.Assertions) > 0 {
		asserts := make([]any, len(s.Assertions))
		for i, a := range s.Assertions {
			asserts[i] = map[string]any{
				"condition": exprToNative(a.Condition),
				"message":   a.Message,
			}
		}

		m["assertions"] = asserts
	}

	if len(s.NoCrossRefs) > 0 {
		refs := make([]any, len(s.NoCrossRefs))
		for i, name := range s.NoCrossRefs {
			refs[i] = name
		}

		m["no_cross_references_to"] = refs
	}

	return m
}

func addressToNative(a *AddressBlock) any {
	m := make(map[string]any)

	if a.Start != nil {
		m["start"] = exprToNative(a.Start)
	}

	if a.Size != nil {
		m["size"] = exprToNative(a.Size)
	}

	if a.Alignment != nil {
		m["alignment"] = exprToNative(a.Alignment)
	}

	if a.VirtualBase != nil {
		m["virtual_base"] = exprToNative(a.VirtualBase)
	}

	if a.Follows != "" {
		m["follows"] = a.Follows
	}

	if a.Region != "" {
		m["region"] = a.Region
	}

	if a.LoadFrom != "" {
		m["load_from_region"] = a.LoadFrom
	}

	return m
}

func contentsItemToNative(item ContentsItem) any {
	switch item := item.(type) {
	case *SymbolDef:
		m := map[string]any{"symbol": item.Name}

		if item.Public {
			m["public"] = true
		}

		if item.Accessor != AccessorDefault {
			m["accessor"] = item.Accessor.String()
		}

		return m

	case *InputStmt:
		return map[string]any{"input": inputToNative(item)}

	case *Keep:
		return map[string]any{"keep": inputToNative(item.Input)}

	case *AlignTo:
		return map[string]any{"align_to": exprToNative(item.Boundary)}

	case *AdvanceBy:
		return map[string]any{"advance_by": exprToNative(item.Amount)}

	case *FillPaddingWith:
		return map[string]any{"fill_padding_with": exprToNative(item.Value)}

	case *Cfg:
		return map[string]any{
			"cfg":  PredicateString(item.Predicate),
			"item": contentsItemToNative(item.Item),
		}

	default:
		return nil
	}
}

func inputToNative(input *InputStmt) any {
	m := make(map[string]any)

	if input.From != "" {
		m["from"] = input.From
	}

	patterns := make([]any, len(input.Patterns))
	for i, p := range input.Patterns {
		patterns[i] = p
	}

	m["patterns"] = patterns

	if input.SortBy != SortNone {
		m["sort_by"] = input.SortBy.String()
	}

	return m
}

// exprToNative projects an expression: literal numbers stay numeric,
// anything symbolic keeps its source form.
func exprToNative(e Expr) any {
	if n, ok := e.(*Number); ok {
		return n.Value
	}

	return ExprString(e)
}
