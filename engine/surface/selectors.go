package surface

import "fmt"

// Selectors holds the CSS selectors for the vendor markup the bridge drives.
// The remote app ships no stable automation hooks, so these change whenever
// the vendor redesigns; they are plain data so deployments can override them
// without a rebuild.
type Selectors struct {
	// Input matches the prompt composer.
	Input string
	// SendButton submits the composed prompt.
	SendButton string
	// ModelPicker opens the model dropdown.
	ModelPicker string
	// ModelOption is a template with one %s slot for the model name.
	ModelOption string
	// AssistantMessage matches rendered assistant reply blocks.
	AssistantMessage string
	// GeneratingIndicator is present while a reply is still streaming.
	GeneratingIndicator string
	// CapacityNotice appears when the app refuses a send under load.
	CapacityNotice string
	// CapacityDismiss dismisses the capacity notice.
	CapacityDismiss string
}

// DefaultSelectors returns the selector set for the markup observed as of
// mid-2024.
func DefaultSelectors() Selectors {
	return Selectors{
		Input:               `div.ProseMirror[contenteditable="true"]`,
		SendButton:          `button[aria-label="Send message"]`,
		ModelPicker:         `button[data-testid="model-selector-dropdown"]`,
		ModelOption:         `[role="menuitem"][data-value="%s"]`,
		AssistantMessage:    `div.font-claude-message`,
		GeneratingIndicator: `button[aria-label="Stop response"]`,
		CapacityNotice:      `[data-testid="capacity-notice"]`,
		CapacityDismiss:     `[data-testid="capacity-notice"] button`,
	}
}

// OptionFor renders the model-option selector for a model name.
func (s Selectors) OptionFor(model string) string {
	return fmt.Sprintf(s.ModelOption, model)
}

// Merge returns s with every non-empty field of o applied on top.
func (s Selectors) Merge(o Selectors) Selectors {
	if o.Input != "" {
		s.Input = o.Input
	}
	if o.SendButton != "" {
		s.SendButton = o.SendButton
	}
	if o.ModelPicker != "" {
		s.ModelPicker = o.ModelPicker
	}
	if o.ModelOption != "" {
		s.ModelOption = o.ModelOption
	}
	if o.AssistantMessage != "" {
		s.AssistantMessage = o.AssistantMessage
	}
	if o.GeneratingIndicator != "" {
		s.GeneratingIndicator = o.GeneratingIndicator
	}
	if o.CapacityNotice != "" {
		s.CapacityNotice = o.CapacityNotice
	}
	if o.CapacityDismiss != "" {
		s.CapacityDismiss = o.CapacityDismiss
	}
	return s
}
