package catalog

type property struct {
	key        string
	definition map[string]interface{}
}

var (
	nameProperty = property{
		key:        "name",
		definition: map[string]interface{}{"type": "string", "minLength": 1},
	}
	flavorProperty = property{
		key:        "flavor",
		definition: map[string]interface{}{"type": "string", "minLength": 1},
	}
	// size may be echoed back as a JSON number or a numeric string.
	sizeProperty = property{
		key: "size",
		definition: map[string]interface{}{
			"oneOf": []interface{}{
				map[string]interface{}{"type": "integer", "minimum": 1},
				map[string]interface{}{"type": "string", "pattern": "^[0-9]*[1-9][0-9]*$"},
			},
		},
	}
)

func objectSchema(props ...property) map[string]interface{} {
	properties := make(map[string]interface{}, len(props))
	required := make([]interface{}, 0, len(props))
	for _, p := range props {
		properties[p.key] = p.definition
		required = append(required, p.key)
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
