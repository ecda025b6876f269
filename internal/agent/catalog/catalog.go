// Package catalog is the static table of supported operations: the entities
// each one needs, the prompts shown before running it and the messages
// reported after it succeeds.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"cloudops-agent/internal/common/validation"
	"cloudops-agent/internal/models"
)

const (
	// UnknownMessage answers messages no rule recognizes.
	UnknownMessage = "I'm sorry, I couldn't understand that request. Please try again with a different phrasing."
	// CancelledMessage is returned to the caller when a proposal is declined.
	CancelledMessage = "Operation cancelled by user"
	// CancelledAuditResponse is the system response stored for a declined proposal.
	CancelledAuditResponse = "Operation cancelled"

	usageTemplate = "Current project usage:\n- vCPUs: %d\n- RAM: %d MB\n- Storage: %d GB\n- VMs: %d\n- Volumes: %d"
)

// Entry describes one operation.
type Entry struct {
	Intent   models.Intent
	Required []string
	Mutating bool

	// Templates use {entity} placeholders substituted verbatim.
	ConfirmTemplate string
	SuccessTemplate string
	MissingPrompt   string

	schema *validation.Schema
}

// Catalog maps intents to entries.
type Catalog struct {
	entries map[models.Intent]*Entry
}

// New returns the catalog of the seven supported operations.
func New() *Catalog {
	c := &Catalog{entries: make(map[models.Intent]*Entry)}
	for _, e := range defaultEntries() {
		c.entries[e.Intent] = e
	}
	return c
}

func defaultEntries() []*Entry {
	return []*Entry{
		{
			Intent:          models.IntentCreateVM,
			Required:        []string{models.EntityName, models.EntityFlavor},
			Mutating:        true,
			ConfirmTemplate: "I'll create a VM named '{name}' with flavor '{flavor}'. Would you like to proceed?",
			SuccessTemplate: "VM {name} is being created",
			schema:          validation.MustCompile(objectSchema(nameProperty, flavorProperty)),
		},
		{
			Intent:          models.IntentResizeVM,
			Required:        []string{models.EntityName, models.EntityFlavor},
			Mutating:        true,
			ConfirmTemplate: "I'll resize VM '{name}' to flavor '{flavor}'. Would you like to proceed?",
			SuccessTemplate: "VM {name} is being resized to {flavor}",
			MissingPrompt:   "Which VM would you like to resize? Please include the VM name.",
			schema:          validation.MustCompile(objectSchema(nameProperty, flavorProperty)),
		},
		{
			Intent:          models.IntentDeleteVM,
			Required:        []string{models.EntityName},
			Mutating:        true,
			ConfirmTemplate: "I'll delete VM '{name}'. This action cannot be undone. Would you like to proceed?",
			SuccessTemplate: "VM {name} has been deleted",
			MissingPrompt:   "Which VM would you like to delete? Please include the VM name.",
			schema:          validation.MustCompile(objectSchema(nameProperty)),
		},
		{
			Intent:          models.IntentCreateNetwork,
			Required:        []string{models.EntityName},
			Mutating:        true,
			ConfirmTemplate: "I'll create a private network named '{name}'. Would you like to proceed?",
			SuccessTemplate: "Network {name} has been created",
			schema:          validation.MustCompile(objectSchema(nameProperty)),
		},
		{
			Intent:          models.IntentCreateVolume,
			Required:        []string{models.EntityName, models.EntitySize},
			Mutating:        true,
			ConfirmTemplate: "I'll create a {size} GB volume named '{name}'. Would you like to proceed?",
			SuccessTemplate: "Volume {name} is being created",
			MissingPrompt:   "How large should the volume be? Please include the size, for example 20GB.",
			schema:          validation.MustCompile(objectSchema(nameProperty, sizeProperty)),
		},
		{
			Intent:          models.IntentDeleteVolume,
			Required:        []string{models.EntityName},
			Mutating:        true,
			ConfirmTemplate: "I'll delete volume '{name}'. This action cannot be undone. Would you like to proceed?",
			SuccessTemplate: "Volume {name} has been deleted",
			MissingPrompt:   "Which volume would you like to delete? Please include the volume name.",
			schema:          validation.MustCompile(objectSchema(nameProperty)),
		},
		{
			Intent:   models.IntentGetUsage,
			Mutating: false,
			schema:   validation.MustCompile(objectSchema()),
		},
	}
}

// Lookup returns the entry for an operation name.
func (c *Catalog) Lookup(operation string) (*Entry, bool) {
	e, ok := c.entries[models.Intent(operation)]
	return e, ok
}

// Operations lists the catalog's operation names in sorted order.
func (c *Catalog) Operations() []string {
	ops := make([]string, 0, len(c.entries))
	for intent := range c.entries {
		ops = append(ops, string(intent))
	}
	sort.Strings(ops)
	return ops
}

// Describe renders the confirmation prompt for a proposed operation.
// Intents without a template (unknown, get_usage) get the fallback message.
func (c *Catalog) Describe(intent models.Intent, entities models.EntitySet) string {
	e, ok := c.entries[intent]
	if !ok || e.ConfirmTemplate == "" {
		return UnknownMessage
	}
	return render(e.ConfirmTemplate, entities)
}

// Success renders the message reported after the operation ran.
func (c *Catalog) Success(intent models.Intent, entities models.EntitySet) string {
	e, ok := c.entries[intent]
	if !ok || e.SuccessTemplate == "" {
		return ""
	}
	return render(e.SuccessTemplate, entities)
}

// Missing returns the required entities absent from entities, in declaration order.
func (e *Entry) Missing(entities models.EntitySet) []string {
	var missing []string
	for _, key := range e.Required {
		if entities.String(key) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// ValidateParameters checks caller-supplied parameters against the entry's schema.
func (e *Entry) ValidateParameters(params models.EntitySet) error {
	doc := map[string]interface{}(params)
	if doc == nil {
		doc = map[string]interface{}{}
	}
	result, err := e.schema.Validate(doc)
	if err != nil {
		return err
	}
	if !result.Valid {
		return fmt.Errorf("%s", result.Summary())
	}
	return nil
}

// FormatUsage renders the usage summary returned for get_usage.
func FormatUsage(u *models.Usage) string {
	return fmt.Sprintf(usageTemplate, u.VCPUs, u.RAMMB, u.VolumesGB, u.VMCount, u.VolumeCount)
}

func render(template string, entities models.EntitySet) string {
	pairs := make([]string, 0, len(entities)*2)
	for key := range entities {
		pairs = append(pairs, "{"+key+"}", entities.String(key))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
