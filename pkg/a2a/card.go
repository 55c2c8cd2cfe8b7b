package a2a

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/viper"
)

// WellKnownCardPath is where an agent publishes its card relative to its
// base URL.
const WellKnownCardPath = "/.well-known/agent-card.json"

// Transport protocol labels used in PreferredTransport and
// AdditionalInterfaces.
const (
	TransportJSONRPC  = "JSONRPC"
	TransportHTTPJSON = "HTTP+JSON"
)

// AgentCapabilities describes the capabilities of an agent
type AgentCapabilities struct {
	// Streaming indicates if the agent supports streaming responses
	Streaming bool `json:"streaming,omitempty"`
	// PushNotifications indicates if the agent supports push notification mechanisms
	PushNotifications bool `json:"pushNotifications,omitempty"`
	// StateTransitionHistory indicates if the agent supports providing state transition history
	StateTransitionHistory bool `json:"stateTransitionHistory,omitempty"`
}

// AgentProvider represents the provider or organization behind an agent
type AgentProvider struct {
	Organization string  `json:"organization"`
	URL          *string `json:"url,omitempty"`
}

// AgentInterface declares one endpoint/transport combination the agent
// serves.
type AgentInterface struct {
	URL       string `json:"url"`
	Transport string `json:"transport"`
}

// AgentSkill defines a specific skill or capability offered by an agent
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

// AgentCard represents the metadata card for an agent
type AgentCard struct {
	// Name is the name of the agent
	Name string `json:"name"`
	// Description is an optional description of the agent
	Description *string `json:"description,omitempty"`
	// URL is the base URL endpoint for interacting with the agent
	URL string `json:"url"`
	// PreferredTransport names the transport served at URL
	PreferredTransport string `json:"preferredTransport,omitempty"`
	// AdditionalInterfaces lists further endpoint/transport combinations
	AdditionalInterfaces []AgentInterface `json:"additionalInterfaces,omitempty"`
	// Provider is information about the provider of the agent
	Provider *AgentProvider `json:"provider,omitempty"`
	// Version is the version identifier for the agent or its API
	Version string `json:"version"`
	// DocumentationURL is an optional URL pointing to the agent's documentation
	DocumentationURL *string `json:"documentationUrl,omitempty"`
	// Capabilities are the capabilities supported by the agent
	Capabilities AgentCapabilities `json:"capabilities"`
	// DefaultInputModes are the default input modes supported by the agent
	DefaultInputModes []string `json:"defaultInputModes,omitempty"`
	// DefaultOutputModes are the default output modes supported by the agent
	DefaultOutputModes []string `json:"defaultOutputModes,omitempty"`
	// Skills is the list of specific skills offered by the agent
	Skills []AgentSkill `json:"skills"`
	// SupportsAuthenticatedExtendedCard signals agent/getAuthenticatedExtendedCard availability
	SupportsAuthenticatedExtendedCard bool `json:"supportsAuthenticatedExtendedCard,omitempty"`
}

// Interfaces returns every endpoint the card advertises, the preferred one
// first. Cards predating PreferredTransport default to JSONRPC.
func (card *AgentCard) Interfaces() []AgentInterface {
	preferred := card.PreferredTransport
	if preferred == "" {
		preferred = TransportJSONRPC
	}

	interfaces := []AgentInterface{{URL: card.URL, Transport: preferred}}
	interfaces = append(interfaces, card.AdditionalInterfaces...)
	return interfaces
}

func NewAgentCardFromConfig(key string) *AgentCard {
	v := viper.GetViper()
	skillArray := v.GetStringSlice(fmt.Sprintf("agent.%s.skills", key))

	skills := make([]AgentSkill, len(skillArray))

	for i, skill := range skillArray {
		skills[i] = NewSkillFromConfig(skill)
	}

	var interfaces []AgentInterface
	for _, name := range v.GetStringSlice(fmt.Sprintf("agent.%s.additional_interfaces", key)) {
		interfaces = append(interfaces, AgentInterface{
			URL:       v.GetString(fmt.Sprintf("interfaces.%s.url", name)),
			Transport: v.GetString(fmt.Sprintf("interfaces.%s.transport", name)),
		})
	}

	return &AgentCard{
		Name:               v.GetString(fmt.Sprintf("agent.%s.name", key)),
		Version:            v.GetString(fmt.Sprintf("agent.%s.version", key)),
		URL:                v.GetString(fmt.Sprintf("agent.%s.url", key)),
		PreferredTransport: v.GetString(fmt.Sprintf("agent.%s.preferred_transport", key)),
		Provider: &AgentProvider{
			Organization: v.GetString(fmt.Sprintf("agent.%s.provider.organization", key)),
			URL:          ptr(v.GetString(fmt.Sprintf("agent.%s.provider.url", key))),
		},
		AdditionalInterfaces: interfaces,
		Capabilities: AgentCapabilities{
			Streaming:              v.GetBool(fmt.Sprintf("agent.%s.capabilities.streaming", key)),
			PushNotifications:      v.GetBool(fmt.Sprintf("agent.%s.capabilities.push_notifications", key)),
			StateTransitionHistory: v.GetBool(fmt.Sprintf("agent.%s.capabilities.state_transition_history", key)),
		},
		DefaultInputModes:  v.GetStringSlice(fmt.Sprintf("agent.%s.default_input_modes", key)),
		DefaultOutputModes: v.GetStringSlice(fmt.Sprintf("agent.%s.default_output_modes", key)),
		Skills:             skills,
	}
}

func NewSkillFromConfig(skill string) AgentSkill {
	v := viper.GetViper()

	return AgentSkill{
		ID:          v.GetString(fmt.Sprintf("skills.%s.id", skill)),
		Name:        v.GetString(fmt.Sprintf("skills.%s.name", skill)),
		Description: ptr(v.GetString(fmt.Sprintf("skills.%s.description", skill))),
		Tags:        v.GetStringSlice(fmt.Sprintf("skills.%s.tags", skill)),
		Examples:    v.GetStringSlice(fmt.Sprintf("skills.%s.examples", skill)),
		InputModes:  v.GetStringSlice(fmt.Sprintf("skills.%s.input_modes", skill)),
		OutputModes: v.GetStringSlice(fmt.Sprintf("skills.%s.output_modes", skill)),
	}
}

func ptr[T any](v T) *T {
	return &v
}

func (card *AgentCard) String() string {
	var sb strings.Builder

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("212")).
		Bold(true)

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("39")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("252"))

	sectionStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		Bold(true)

	indent := "   "
	bullet := "│ "

	sb.WriteString(headerStyle.Render("Agent Card") + "\n")
	sb.WriteString(bullet + labelStyle.Render("Name: ") + valueStyle.Render(card.Name) + "\n")
	if card.Description != nil {
		sb.WriteString(bullet + labelStyle.Render("Description: ") + valueStyle.Render(*card.Description) + "\n")
	}
	sb.WriteString(bullet + labelStyle.Render("URL: ") + valueStyle.Render(card.URL) + "\n")
	sb.WriteString(bullet + labelStyle.Render("Version: ") + valueStyle.Render(card.Version) + "\n")

	sb.WriteString("\n" + sectionStyle.Render("Interfaces") + "\n")
	for _, iface := range card.Interfaces() {
		sb.WriteString(bullet + labelStyle.Render(iface.Transport+": ") + valueStyle.Render(iface.URL) + "\n")
	}

	if card.Provider != nil {
		sb.WriteString("\n" + sectionStyle.Render("Provider") + "\n")
		sb.WriteString(bullet + labelStyle.Render("Organization: ") + valueStyle.Render(card.Provider.Organization) + "\n")
		if card.Provider.URL != nil {
			sb.WriteString(bullet + labelStyle.Render("URL: ") + valueStyle.Render(*card.Provider.URL) + "\n")
		}
	}

	sb.WriteString("\n" + sectionStyle.Render("Capabilities") + "\n")
	sb.WriteString(bullet + labelStyle.Render("Streaming: ") + valueStyle.Render(fmt.Sprintf("%v", card.Capabilities.Streaming)) + "\n")
	sb.WriteString(bullet + labelStyle.Render("Push Notifications: ") + valueStyle.Render(fmt.Sprintf("%v", card.Capabilities.PushNotifications)) + "\n")
	sb.WriteString(bullet + labelStyle.Render("State Transition History: ") + valueStyle.Render(fmt.Sprintf("%v", card.Capabilities.StateTransitionHistory)) + "\n")

	if len(card.Skills) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("Skills") + "\n")
		for i, skill := range card.Skills {
			sb.WriteString(bullet + labelStyle.Render(fmt.Sprintf("Skill %d", i+1)) + "\n")
			sb.WriteString(bullet + indent + labelStyle.Render("ID: ") + valueStyle.Render(skill.ID) + "\n")
			sb.WriteString(bullet + indent + labelStyle.Render("Name: ") + valueStyle.Render(skill.Name) + "\n")
			if skill.Description != nil {
				sb.WriteString(bullet + indent + labelStyle.Render("Description: ") + valueStyle.Render(*skill.Description) + "\n")
			}
			if len(skill.Tags) > 0 {
				sb.WriteString(bullet + indent + labelStyle.Render("Tags: ") + valueStyle.Render(strings.Join(skill.Tags, ", ")) + "\n")
			}
		}
	}

	return sb.String()
}
