package records

import (
	"context"

	"github.com/pkg/errors"
	"gopkg.in/guregu/null.v3"

	"github.com/builderkit/modloader/activation"
)

// AccountContext is the remote state a routing decision depends on.
type AccountContext struct {
	AccountType null.String
}

// AccountLookup fetches the account type of the current user from the
// record field, filtering records by matchField == user id. When
// matchField is empty the record API scopes the query to the token's user.
type AccountLookup struct {
	Client     *Client
	Field      string
	MatchField string
}

// Lookup performs exactly one records request.
func (a *AccountLookup) Lookup(ctx context.Context, _ activation.Context) (AccountContext, error) {
	var rules []Rule
	if a.MatchField != "" {
		creds, err := a.Client.credentials(ctx)
		if err != nil {
			return AccountContext{}, errors.Wrap(err, "getting credentials")
		}
		rules = append(rules, Rule{Field: a.MatchField, Operator: "is", Value: creds.UserID})
	}

	v, err := a.Client.Field(ctx, a.Field, rules...)
	if err != nil {
		return AccountContext{}, errors.Wrapf(err, "looking up %s", a.Field)
	}
	return AccountContext{AccountType: v}, nil
}
