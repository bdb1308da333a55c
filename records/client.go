// Package records is a client for the backend record API used to branch
// routing on fields of the current user's account record.
package records

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gopkg.in/guregu/null.v3"

	"github.com/builderkit/modloader/activation"
	"github.com/builderkit/modloader/log"
)

var (
	// ErrNoCredentials is returned when the host has not supplied a token yet.
	ErrNoCredentials = errors.New("no credentials supplied by host")
	// ErrTokenExpired is returned without a network call for expired tokens.
	ErrTokenExpired = errors.New("bearer token expired")
)

// Credentials are supplied by the host at call time.
type Credentials struct {
	Token  string
	UserID string
}

// CredentialsFunc returns the credentials to use for one request.
type CredentialsFunc func(ctx context.Context) (Credentials, error)

// Rule is one filter rule of a records query.
type Rule struct {
	Field    string
	Operator string
	Value    string
}

// Client looks up records through GET {base}/records?filters=<json>.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	credentials CredentialsFunc
	logger      *log.Logger
	now         func() time.Time
}

// NewClient returns a records client. A nil httpClient uses a client with
// the given timeout.
func NewClient(baseURL string, timeout time.Duration, credentials CredentialsFunc, logger *log.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		credentials: credentials,
		logger:      logger,
		now:         time.Now,
	}
}

// Filters encodes rules into the JSON filter expected by the record API:
// {"match":"and","rules":[{"field":...,"operator":...,"value":...}]}.
func Filters(rules ...Rule) (string, error) {
	filters := `{"match":"and","rules":[]}`
	for _, r := range rules {
		rule, err := sjson.Set(`{}`, "field", r.Field)
		if err != nil {
			return "", errors.Wrap(err, "encoding rule field")
		}
		if rule, err = sjson.Set(rule, "operator", r.Operator); err != nil {
			return "", errors.Wrap(err, "encoding rule operator")
		}
		if rule, err = sjson.Set(rule, "value", r.Value); err != nil {
			return "", errors.Wrap(err, "encoding rule value")
		}
		if filters, err = sjson.SetRaw(filters, "rules.-1", rule); err != nil {
			return "", errors.Wrap(err, "appending rule")
		}
	}
	return filters, nil
}

// Query returns the raw response body of a filtered records request.
func (c *Client) Query(ctx context.Context, rules ...Rule) ([]byte, error) {
	creds, err := c.credentials(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting credentials")
	}
	if creds.Token == "" {
		return nil, ErrNoCredentials
	}
	if err := c.checkExpiry(creds.Token); err != nil {
		return nil, err
	}

	filters, err := Filters(rules...)
	if err != nil {
		return nil, err
	}
	u := c.baseURL + "/records?filters=" + url.QueryEscape(filters)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building records request")
	}
	req.Header.Set("Authorization", "Bearer "+creds.Token)
	req.Header.Set("Accept", "application/json")

	if actx, ok := activation.GetActivation(ctx); ok {
		c.logger.Debugf("Records:Query", "key:%s GET %s", actx.Key(), u)
	} else {
		c.logger.Debugf("Records:Query", "GET %s", u)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "requesting records")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading records response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("records request: unexpected status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("records response is not valid JSON")
	}

	return body, nil
}

// Field returns field of the first record matching rules. The result is
// null when no record matched or the field is empty.
func (c *Client) Field(ctx context.Context, field string, rules ...Rule) (null.String, error) {
	body, err := c.Query(ctx, rules...)
	if err != nil {
		return null.String{}, err
	}

	records := gjson.GetBytes(body, "records")
	if !records.IsArray() {
		return null.String{}, errors.New("records response has no records array")
	}
	v := records.Get("0." + gjson.Escape(field))
	if !v.Exists() || v.Type == gjson.Null {
		return null.String{}, nil
	}
	// Connection and choice fields come back as arrays; the first entry wins.
	if v.IsArray() {
		v = v.Get("0")
		if id := v.Get("identifier"); id.Exists() {
			v = id
		}
	}

	return null.NewString(v.String(), v.String() != ""), nil
}

// checkExpiry rejects tokens whose exp claim is in the past. Tokens that are
// not JWTs are passed through; the API is the authority on them.
func (c *Client) checkExpiry(token string) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil //nolint:nilerr
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil //nolint:nilerr
	}
	if !exp.After(c.now()) {
		return ErrTokenExpired
	}
	return nil
}
