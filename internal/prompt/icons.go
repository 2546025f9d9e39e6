package prompt

// Icon is a resolved prompt icon.
type Icon struct {
	Name  string `json:"name"`
	Glyph string `json:"glyph"`
}

// iconTable is the complete set of icons a prompt may name.
var iconTable = [...]Icon{
	{"info", "ℹ"},
	{"success", "✔"},
	{"warning", "⚠"},
	{"error", "✖"},
	{"question", "?"},
	{"lock", "🔒"},
	{"key", "🔑"},
	{"shield", "🛡"},
	{"terminal", "⌨"},
	{"bell", "🔔"},
	{"clock", "⏱"},
	{"user", "👤"},
}

// ResolveIcon returns the icon named name if it is in the table, otherwise
// the default icon for severity. Names are matched exactly.
func ResolveIcon(name string, severity Severity) Icon {
	for _, ic := range iconTable {
		if ic.Name == name {
			return ic
		}
	}
	return severityIcon(severity)
}

func severityIcon(s Severity) Icon {
	switch s {
	case SeveritySuccess:
		return iconTable[1]
	case SeverityWarning:
		return iconTable[2]
	case SeverityError:
		return iconTable[3]
	default:
		return iconTable[0]
	}
}
