// Package persona builds the system prompt sent to the model for each turn.
package persona

import (
	"fmt"
	"strings"
)

// Role selects which persona a prompt is built for.
type Role string

const (
	RoleOwner Role = "owner"
	RoleGuest Role = "guest"
)

// Profile is the static persona material, loaded once at startup.
type Profile struct {
	BotName      string
	OwnerHandle  string // messaging handle, without "@"
	OwnerContact string
	OwnerPersona string // may reference {handle} and {contact}
	GuestPersona string
}

// Budgets holds the completion token budgets per role.
type Budgets struct {
	Owner int
	Guest int
}

// Input is everything a single prompt depends on. Mood and Nickname are
// sampled by the caller, never inside the builder.
type Input struct {
	Role        Role
	DisplayName string
	Text        string
	Memory      string
	Mood        string
	Nickname    string
}

// Builder renders prompts. It holds no mutable state.
type Builder struct {
	profile Profile
	budgets Budgets
}

// NewBuilder creates a prompt builder
func NewBuilder(profile Profile, budgets Budgets) *Builder {
	return &Builder{profile: profile, budgets: budgets}
}

// Budget returns the max completion tokens for role
func (b *Builder) Budget(role Role) int {
	if role == RoleOwner {
		return b.budgets.Owner
	}
	return b.budgets.Guest
}

// Build renders the system prompt for in. Identical inputs give identical output.
func (b *Builder) Build(in Input) string {
	if in.Role == RoleOwner {
		return b.buildOwner(in)
	}
	return b.buildGuest(in)
}

// OwnerPersona returns the owner persona with identity attributes substituted
func (b *Builder) OwnerPersona() string {
	r := strings.NewReplacer(
		"{handle}", b.profile.OwnerHandle,
		"{contact}", b.profile.OwnerContact,
		"{bot}", b.profile.BotName,
	)
	return r.Replace(b.profile.OwnerPersona)
}

func (b *Builder) buildOwner(in Input) string {
	name := in.DisplayName
	if name == "" {
		name = "love"
	}

	var sb strings.Builder
	sb.WriteString(b.OwnerPersona())
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Current mood: %s\n", in.Mood)
	fmt.Fprintf(&sb, "Reply in Hindi/Hinglish naturally. Call him '%s' sometimes in your replies. "+
		"You can be more expressive and detailed with your owner.\n", in.Nickname)
	fmt.Fprintf(&sb, "Your deep memory with %s (@%s):\n%s\n\n", name, b.profile.OwnerHandle, in.Memory)
	fmt.Fprintf(&sb, "Current conversation:\nOwner: %s\n", in.Text)
	fmt.Fprintf(&sb, "Reply as %s, his loving AI girlfriend. Be helpful, caring, and remember everything. "+
		"You can give detailed help for tasks, coding, advice, or just be a caring companion. "+
		"Use cute nicknames like '%s' naturally in your response.", b.profile.BotName, in.Nickname)
	return sb.String()
}

func (b *Builder) buildGuest(in Input) string {
	name := in.DisplayName
	if name == "" {
		name = "friend"
	}

	var sb strings.Builder
	sb.WriteString(strings.ReplaceAll(b.profile.GuestPersona, "{bot}", b.profile.BotName))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Current mood: %s\n", in.Mood)
	sb.WriteString(LanguageHint(ContainsDevanagari(in.Text)))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Previous memory with %s:\n%s\n\n", name, in.Memory)
	fmt.Fprintf(&sb, "Conversation:\nUser (%s): %s\n", name, in.Text)
	fmt.Fprintf(&sb, "Reply as %s in short lines (one or two sentences). "+
		"Be playful or emotional depending on mood.", b.profile.BotName)
	return sb.String()
}

// LanguageHint renders the guest language instruction
func LanguageHint(devanagari bool) string {
	if devanagari {
		return "The user wrote in Hindi script; reply in Hindi/Hinglish."
	}
	return "Reply in Hindi/Hinglish only if the user used Hindi words; otherwise reply in English."
}

// ContainsDevanagari reports whether text has any rune in U+0900–U+097F
func ContainsDevanagari(text string) bool {
	for _, r := range text {
		if r >= 0x0900 && r <= 0x097F {
			return true
		}
	}
	return false
}
