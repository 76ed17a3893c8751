package runtime

import "fmt"

type detHandlerEntry struct {
	handler DeterministicHandler
	schema  *PayloadSchema
}

// registries holds the type→name handler tables spec.md 4.12 describes:
// deterministic command handlers (with an optional payload schema) and
// runtime closure handlers, kept separate since only the former are
// retried and journaled.
type registries struct {
	deterministic map[string]map[string]detHandlerEntry
	closures      map[string]map[string]RuntimeClosure
}

func newRegistries() *registries {
	return &registries{
		deterministic: map[string]map[string]detHandlerEntry{},
		closures:      map[string]map[string]RuntimeClosure{},
	}
}

// RegisterCommand binds a deterministic command handler for entityType,
// optionally validated against schema before every invocation.
func (r *registries) RegisterCommand(entityType, name string, h DeterministicHandler, schema *PayloadSchema) {
	if r.deterministic[entityType] == nil {
		r.deterministic[entityType] = map[string]detHandlerEntry{}
	}
	r.deterministic[entityType][name] = detHandlerEntry{handler: h, schema: schema}
}

// RegisterClosure binds a non-deterministic runtime closure for entityType.
func (r *registries) RegisterClosure(entityType, name string, fn RuntimeClosure) {
	if r.closures[entityType] == nil {
		r.closures[entityType] = map[string]RuntimeClosure{}
	}
	r.closures[entityType][name] = fn
}

func (r *registries) command(entityType, name string) (detHandlerEntry, error) {
	byName, ok := r.deterministic[entityType]
	if !ok {
		return detHandlerEntry{}, fmt.Errorf("runtime: no deterministic commands registered for entity type %q", entityType)
	}
	entry, ok := byName[name]
	if !ok {
		return detHandlerEntry{}, fmt.Errorf("runtime: entity type %q has no command %q", entityType, name)
	}
	return entry, nil
}

func (r *registries) closure(entityType, name string) (RuntimeClosure, error) {
	byName, ok := r.closures[entityType]
	if !ok {
		return nil, fmt.Errorf("runtime: no runtime closures registered for entity type %q", entityType)
	}
	fn, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("runtime: entity type %q has no closure %q", entityType, name)
	}
	return fn, nil
}

// Validate checks payload's shape against schema: every required field
// must be present with a compatible type, and an absent AllowExtraFields
// rejects any field the schema doesn't name.
func (schema *PayloadSchema) Validate(payload map[string]any) error {
	if schema == nil {
		return nil
	}
	declared := make(map[string]PayloadField, len(schema.Fields))
	for _, f := range schema.Fields {
		declared[f.Name] = f
	}
	for _, f := range schema.Fields {
		v, present := payload[f.Name]
		if !present {
			if f.Required {
				return fmt.Errorf("runtime: payload for %s is missing required field %q", schema.RootType, f.Name)
			}
			continue
		}
		if !payloadTypeMatches(f.PayloadType, v) {
			return fmt.Errorf("runtime: payload for %s field %q has the wrong type, want %s", schema.RootType, f.Name, f.PayloadType)
		}
	}
	if !schema.AllowExtraFields {
		for name := range payload {
			if _, ok := declared[name]; !ok {
				return fmt.Errorf("runtime: payload for %s carries undeclared field %q", schema.RootType, name)
			}
		}
	}
	return nil
}

func payloadTypeMatches(want string, v any) bool {
	switch want {
	case "", "any":
		return true
	case "string":
		_, ok := v.(string)
		return ok
	case "int":
		switch v.(type) {
		case int, int32, int64, float64:
			return true
		}
		return false
	case "float":
		_, ok := v.(float64)
		return ok
	case "bool":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	default:
		return true
	}
}
