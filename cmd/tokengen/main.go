// Package main generates bearer tokens for local use of the certexport API.
// Tokens are signed with the configured or development key and carry the
// requested scopes.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	jwttoken "certexport/internal/jwt_token"
	"certexport/internal/platform/config"
	pkgstrings "certexport/pkg/platform/strings"
)

const defaultTokenTTL = 15 * time.Minute

type tokenOutput struct {
	Token     string   `json:"token"`
	Subject   string   `json:"subject"`
	Scopes    []string `json:"scopes"`
	ExpiresIn string   `json:"expires_in"`
}

func main() {
	subject := flag.String("subject", "", "Token subject. Generated if empty.")
	scopes := flag.String("scopes", "certificates:write,certificates:export", "Comma-separated scopes")
	ttl := flag.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	asJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	if *subject == "" {
		*subject = "operator-" + uuid.NewString()
	}
	scopeList := pkgstrings.SplitList(*scopes)

	cfg := config.FromEnv()
	svc := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	token, err := svc.GenerateAccessToken(*subject, scopeList, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate token: %v\n", err)
		os.Exit(1)
	}

	if !*asJSON {
		fmt.Println(token)
		return
	}
	out := tokenOutput{Token: token, Subject: *subject, Scopes: scopeList, ExpiresIn: ttl.String()}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
		os.Exit(1)
	}
}
