package email

import (
	"errors"

	"github.com/dukex/flowbox/pkg/clients/mail"
	"github.com/dukex/flowbox/pkg/protocol"
)

type ActionFactory struct {
	client mail.Client
}

func NewActionFactory(client mail.Client) *ActionFactory {
	return &ActionFactory{client: client}
}

func (*ActionFactory) ID() string {
	return "email"
}

func (f *ActionFactory) Create(config map[string]string) (protocol.Action, error) {
	if config == nil {
		config = map[string]string{}
	}

	if config["to"] == "" {
		return nil, errors.New("email action requires a to parameter")
	}

	if config["body"] == "" {
		return nil, errors.New("email action requires a body parameter")
	}

	return &Action{
		toTemplate:      config["to"],
		subjectTemplate: config["subject"],
		bodyTemplate:    config["body"],
		client:          f.client,
	}, nil
}
