package extractor

import (
	"strings"

	"cloudops-agent/internal/models"
)

// Defaults used when a message does not name the entity.
const (
	DefaultVMName      = "default-vm"
	DefaultNetworkName = "default-network"
	DefaultVolumeName  = "default-volume"
	DefaultFlavor      = "default-flavor"
	DefaultVolumeSize  = 100
)

var nameMarkers = []string{"named", "called"}

// Rule pairs a predicate with the entity builder for one intent.
type Rule struct {
	Intent  models.Intent
	Match   func(m *Message) bool
	Extract func(m *Message) models.EntitySet
}

// DefaultRules returns the rule table in evaluation order. Order is the
// tie-break: "create a vm with a volume" is create_vm because that rule is first.
func DefaultRules() []Rule {
	return []Rule{
		{
			Intent:  models.IntentCreateVM,
			Match:   func(m *Message) bool { return m.Contains("create", "vm") },
			Extract: extractCreateVM,
		},
		{
			Intent:  models.IntentResizeVM,
			Match:   func(m *Message) bool { return m.Contains("resize", "vm") },
			Extract: extractResizeVM,
		},
		{
			Intent:  models.IntentDeleteVM,
			Match:   func(m *Message) bool { return m.Contains("delete", "vm") },
			Extract: extractDeleteVM,
		},
		{
			Intent:  models.IntentCreateNetwork,
			Match:   func(m *Message) bool { return m.Contains("create", "network") },
			Extract: extractCreateNetwork,
		},
		{
			Intent:  models.IntentCreateVolume,
			Match:   func(m *Message) bool { return m.Contains("create", "volume") },
			Extract: extractCreateVolume,
		},
		{
			Intent:  models.IntentDeleteVolume,
			Match:   func(m *Message) bool { return m.Contains("delete", "volume") },
			Extract: extractDeleteVolume,
		},
		{
			Intent:  models.IntentGetUsage,
			Match:   func(m *Message) bool { return m.ContainsAny("usage", "quota") },
			Extract: func(*Message) models.EntitySet { return models.EntitySet{} },
		},
	}
}

func extractCreateVM(m *Message) models.EntitySet {
	return models.EntitySet{
		models.EntityName:   nameOr(m, DefaultVMName),
		models.EntityFlavor: flavorOr(m, DefaultFlavor),
	}
}

func extractResizeVM(m *Message) models.EntitySet {
	entities := models.EntitySet{}
	if name, ok := positional(m, "resize", "the", "vm"); ok && !strings.EqualFold(name, "to") {
		entities[models.EntityName] = name
	}

	if target, ok := m.After("to"); ok {
		if canonical, known := m.canonicalFlavor(target); known {
			target = canonical
		} else {
			target = strings.TrimRight(target, ".")
		}
		entities[models.EntityFlavor] = target
	} else {
		entities[models.EntityFlavor] = flavorOr(m, DefaultFlavor)
	}
	return entities
}

func extractDeleteVM(m *Message) models.EntitySet {
	entities := models.EntitySet{}
	if name, ok := m.AfterSequence("the", "vm"); ok {
		entities[models.EntityName] = name
	} else if m.HasSequence("the", "vm") {
		return entities
	} else if name, ok := m.After("delete"); ok {
		entities[models.EntityName] = name
	}
	return entities
}

func extractCreateNetwork(m *Message) models.EntitySet {
	return models.EntitySet{
		models.EntityName: nameOr(m, DefaultNetworkName),
	}
}

// extractCreateVolume defaults the size only when none is given. A size that
// does not parse is left out so the caller is asked for it.
func extractCreateVolume(m *Message) models.EntitySet {
	entities := models.EntitySet{models.EntityName: nameOr(m, DefaultVolumeName)}
	if size, ok := m.Size(); ok {
		entities[models.EntitySize] = size
	} else if !m.MentionsSize() {
		entities[models.EntitySize] = DefaultVolumeSize
	}
	return entities
}

func extractDeleteVolume(m *Message) models.EntitySet {
	entities := models.EntitySet{}
	if name, ok := m.AfterSequence("delete", "volume"); ok {
		entities[models.EntityName] = name
	} else if m.HasSequence("delete", "volume") {
		return entities
	} else if name, ok := m.After("delete"); ok {
		entities[models.EntityName] = name
	}
	return entities
}

func nameOr(m *Message, fallback string) string {
	if name, ok := m.MarkedName(nameMarkers...); ok {
		return name
	}
	return fallback
}

func flavorOr(m *Message, fallback string) string {
	if f, ok := m.Flavor(); ok {
		return f
	}
	return fallback
}

// positional returns the first token after trigger that is not a filler word.
func positional(m *Message, trigger string, fillers ...string) (string, bool) {
	i := m.index(trigger)
	if i < 0 {
		return "", false
	}
	for _, t := range m.Tokens[i+1:] {
		if isFiller(t, fillers) {
			continue
		}
		return t, true
	}
	return "", false
}

func isFiller(token string, fillers []string) bool {
	for _, f := range fillers {
		if strings.EqualFold(token, f) {
			return true
		}
	}
	return false
}
