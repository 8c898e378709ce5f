package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/clawdesk/clawdesk/internal/apperr"
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared struct validator with clawdesk's custom
// rules registered: "ident" (profile, macro, or agent identifier) and
// "gwport" (integer in [MinPort, MaxPort]).
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("ident", func(fl validator.FieldLevel) bool {
			return namePattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("gwport", func(fl validator.FieldLevel) bool {
			_, ok := NormalizePort(int(fl.Field().Int()))
			return ok
		})
		validate = v
	})
	return validate
}

// Check validates a request payload and converts failures into a
// ValidationError listing each offending field.
func Check(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return apperr.Validation("invalid payload: " + strings.Join(msgs, "; "))
}

// ProfileInput is the payload for creating or updating a profile.
type ProfileInput struct {
	Name      string `json:"name" validate:"required,ident"`
	Bind      string `json:"bind" validate:"omitempty,hostname_rfc1123|ip"`
	Port      int    `json:"port" validate:"gwport"`
	TokenPath string `json:"token_path,omitempty"`
	Token     string `json:"token,omitempty"`
}

// Apply merges the input into cfg, keeping an existing credential when
// the input leaves it empty.
func (in ProfileInput) Apply(cfg *Config) Profile {
	prev := cfg.Profiles[in.Name]
	p := Profile{
		Name:      in.Name,
		Bind:      in.Bind,
		Port:      in.Port,
		TokenPath: in.TokenPath,
		Auth:      ProfileAuth{Token: in.Token},
	}
	if p.Bind == "" {
		p.Bind = "127.0.0.1"
	}
	if p.TokenPath == "" {
		p.TokenPath = prev.TokenPath
	}
	if p.Auth.Token == "" {
		p.Auth.Token = prev.Auth.Token
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]Profile{}
	}
	cfg.Profiles[in.Name] = p
	return p
}
