package prompta

// CompileMessages builds the message list for one invocation: the system
// message, each history entry as a user/assistant pair, then the live user turn.
// History text is used verbatim.
func CompileMessages[P any](tmpl Template[P], in P, history []HistoryEntry) ([]Message, error) {
	system, err := Promptify(tmpl.System, in)
	if err != nil {
		return nil, withSlot(err, RoleSystem)
	}

	user, err := Promptify(tmpl.User, in)
	if err != nil {
		return nil, withSlot(err, RoleUser)
	}

	messages := make([]Message, 0, len(history)*2+2)
	messages = append(messages, Message{Role: RoleSystem, Content: system})
	for _, entry := range history {
		messages = append(messages,
			Message{Role: RoleUser, Content: entry.User},
			Message{Role: RoleAssistant, Content: entry.Assistant},
		)
	}
	messages = append(messages, Message{Role: RoleUser, Content: user})

	return messages, nil
}

func withSlot(err error, slot string) error {
	if te, ok := err.(*TemplateError); ok {
		te.Slot = slot
	}
	return err
}
