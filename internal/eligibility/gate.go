// Package eligibility decides whether a participant may start a new
// diagnostic run.
package eligibility

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"

	"go.uber.org/zap"

	"github.com/maconsulting/parcours/internal/apiclient"
	"github.com/maconsulting/parcours/internal/logging"
	"github.com/maconsulting/parcours/internal/models"
	"github.com/maconsulting/parcours/internal/utils"
)

// ErrVerificationFailed is returned for any non-2xx eligibility response.
var ErrVerificationFailed = errors.New("eligibility verification failed")

// VerificationFailedMessage is the banner shown for ErrVerificationFailed.
const VerificationFailedMessage = "La vérification a échoué. Réessayez dans un instant."

// verificationError carries the backend's message for logs while the
// participant only sees VerificationFailedMessage.
type verificationError struct {
	status int
	msg    string
}

func (e *verificationError) Error() string {
	return fmt.Sprintf("%s (%d: %s)", ErrVerificationFailed, e.status, e.msg)
}

func (e *verificationError) Unwrap() error       { return ErrVerificationFailed }
func (e *verificationError) UserMessage() string { return VerificationFailedMessage }

// ResultPath is the route that shows a participant's previous result.
const ResultPath = "/diagnostic/resultat"

// Decision is the outcome of a check.
type Decision struct {
	AllowNew  bool
	Reason    models.EligibilityReason
	BlockedBy models.BlockedBy
}

// HardBlock reports a suspended participant: no alternate action is offered.
func (d Decision) HardBlock() bool {
	return d.Reason == models.ReasonSuspended
}

// OffersResultLink reports whether the "view previous result" link is shown.
func (d Decision) OffersResultLink() bool {
	if d.AllowNew || d.BlockedBy != models.BlockedByEmail {
		return false
	}
	return d.Reason == models.ReasonPending || d.Reason == models.ReasonCancelled
}

// ResultRoute is the link target for OffersResultLink.
func (d Decision) ResultRoute(email string) string {
	return ResultPath + "?" + url.Values{"email": []string{email}}.Encode()
}

// Gate checks eligibility against the backend. It never mutates a session.
type Gate struct {
	client *apiclient.Client
	log    *zap.Logger
}

func NewGate(client *apiclient.Client, log *zap.Logger) *Gate {
	return &Gate{client: client, log: logging.OrNop(log)}
}

// NormalizeAndValidate returns the normalized email or a ValidationError.
func NormalizeAndValidate(email string) (string, error) {
	e := utils.NormalizeEmail(email)
	if e == "" {
		return "", apiclient.NewValidationError("email", "Adresse e-mail requise")
	}
	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e {
		return "", apiclient.NewValidationError("email", "Adresse e-mail invalide")
	}
	return e, nil
}

// Check asks the backend whether email may start a new run. Network failures
// come back as *apiclient.NetworkError; HTTP failures wrap
// ErrVerificationFailed. There is no retry.
func (g *Gate) Check(ctx context.Context, email string) (Decision, error) {
	e, err := NormalizeAndValidate(email)
	if err != nil {
		return Decision{}, err
	}

	data, err := apiclient.Get[models.Eligibility](ctx, g.client, "/diagnostic-sessions/eligibility", apiclient.EmailQuery(e), nil)
	if err != nil {
		if he, ok := apiclient.AsHTTPError(err); ok {
			g.log.Warn("eligibility check rejected", zap.Int("status", he.Status))
			return Decision{}, &verificationError{status: he.Status, msg: he.Message}
		}
		return Decision{}, err
	}
	return decide(data), nil
}

func decide(e models.Eligibility) Decision {
	d := Decision{AllowNew: e.AllowNew, Reason: e.Reason, BlockedBy: e.BlockedBy}
	if d.Reason == "" {
		d.Reason = models.ReasonNew
	}
	if d.BlockedBy == "" {
		d.BlockedBy = models.BlockedByNone
	}
	switch d.Reason {
	case models.ReasonNew:
		d.AllowNew = true
	case models.ReasonSuspended:
		d.AllowNew = false
	}
	return d
}
