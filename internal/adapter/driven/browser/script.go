package browser

import (
	_ "embed"
	"strings"
)

var (
	//go:embed scripts/interceptor.js
	interceptorJS string
	//go:embed scripts/find.js
	findJS string
	//go:embed scripts/locate.js
	locateJS string
	//go:embed scripts/submit.js
	submitJS string
	//go:embed scripts/extract.js
	extractJS string
)

// Selectors are the ordered fallback lists used to find the login form.
// The first selector that matches wins. ButtonText is matched
// case-insensitively against visible button labels when no Button selector matches.
type Selectors struct {
	Email      []string `json:"email"`
	Password   []string `json:"password"`
	Button     []string `json:"button"`
	ButtonText []string `json:"buttonText"`
}

// Script is the page-side half of a login attempt. Each field is a JavaScript
// function source evaluated on the surface. Tuning selectors or replacing the
// scripts does not touch the Automator's state machine.
type Script struct {
	// Preload runs before any page script and captures auth headers.
	Preload string
	// Locate receives Selectors and returns {"email":bool,"password":bool,"button":bool}.
	Locate string
	// Submit receives Selectors, email and password; returns "submitted" or "missing".
	Submit string
	// Extract returns the first token candidate longer than 10 characters, or "".
	Extract string

	Selectors Selectors
}

// DefaultScript returns the script for the SEDAPAL virtual office login page.
func DefaultScript() Script {
	return Script{
		Preload: interceptorJS,
		Locate:  inlineFind(locateJS),
		Submit:  inlineFind(submitJS),
		Extract: extractJS,
		Selectors: Selectors{
			Email: []string{
				`input[type="email"]`,
				`input[name="email"]`,
				`input[id="email"]`,
				`input[placeholder*="email"]`,
				`input[placeholder*="correo"]`,
				`.email-input`,
				`#email`,
				`[data-cy="email"]`,
			},
			Password: []string{
				`input[type="password"]`,
				`input[name="password"]`,
				`input[id="password"]`,
				`input[placeholder*="password"]`,
				`input[placeholder*="contraseña"]`,
				`.password-input`,
				`#password`,
				`[data-cy="password"]`,
			},
			Button: []string{
				`button[type="submit"]`,
				`input[type="submit"]`,
				`.btn-login`,
				`.login-button`,
				`[data-cy="login"]`,
				`.submit-btn`,
			},
			ButtonText: []string{"Iniciar", "Login"},
		},
	}
}

func inlineFind(src string) string {
	return strings.Replace(src, "__FIND__", findJS, 1)
}
