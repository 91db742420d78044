package transfer

import (
	"errors"

	"github.com/dukex/flowbox/pkg/clients/ledger"
	"github.com/dukex/flowbox/pkg/idempotency"
	"github.com/dukex/flowbox/pkg/protocol"
)

type ActionFactory struct {
	client ledger.Client
	guard  idempotency.Guard
}

func NewActionFactory(client ledger.Client, guard idempotency.Guard) *ActionFactory {
	return &ActionFactory{client: client, guard: guard}
}

func (*ActionFactory) ID() string {
	return "transfer"
}

func (f *ActionFactory) Create(config map[string]string) (protocol.Action, error) {
	if config == nil {
		config = map[string]string{}
	}

	if config["amount"] == "" {
		return nil, errors.New("transfer action requires an amount parameter")
	}

	if config["destination"] == "" {
		return nil, errors.New("transfer action requires a destination parameter")
	}

	return &Action{
		amountTemplate:      config["amount"],
		destinationTemplate: config["destination"],
		client:              f.client,
		guard:               f.guard,
		backoff:             backoffBase,
	}, nil
}
