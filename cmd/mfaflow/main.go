// Package main drives one device enrollment against a running MFA platform.
// Start cmd/platform-sim first, then run this flow and type the passcode the
// simulator logs.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tendant/simple-mfa/pkg/config"
	"github.com/tendant/simple-mfa/pkg/enrollflow"
	"github.com/tendant/simple-mfa/pkg/mfa"
	"github.com/tendant/simple-mfa/pkg/mfaclient"
	"github.com/tendant/simple-mfa/pkg/token"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	godotenv.Load()

	var cfg config.FlowConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "failed to read config:", err)
		os.Exit(1)
	}

	if cfg.WorkerToken == "" && cfg.UserToken == "" {
		cfg.WorkerToken = devToken(cfg.Username)
	}

	client := mfaclient.NewHTTPClient(cfg.BaseURL)
	inspector := token.NewInspector()
	session := enrollflow.NewSession(client, inspector, enrollflow.FlowType(cfg.FlowType),
		enrollflow.WithDesiredStatus(mfa.DeviceStatus(cfg.DesiredStatus)))

	reader := bufio.NewReader(os.Stdin)
	creds := collectCredentials(reader, cfg)

	if !session.Configure(creds) {
		fmt.Println("Configuration rejected:")
		for _, msg := range session.Navigator().ValidationErrors() {
			fmt.Println("  -", msg)
		}
		os.Exit(1)
	}

	ctx := context.Background()
	existing := session.LoadDevices(ctx)
	fmt.Printf("User has %d existing device(s)\n", len(existing))

	if err := session.Register(ctx); err != nil {
		fmt.Println("Registration failed:")
		for _, msg := range session.Navigator().ValidationErrors() {
			fmt.Println("  -", msg)
		}
		os.Exit(1)
	}

	if view := session.SuccessView(); view != nil {
		printSuccess(view)
		return
	}

	// Activation path: the platform issued a passcode at registration for
	// deliverable channels; TOTP codes come from the authenticator app.
	for {
		code := prompt(reader, "Passcode: ")
		ok, err := session.Validate(ctx, code)
		if ok {
			break
		}
		fmt.Println("Validation failed:", err)
		fmt.Printf("Attempts so far: %d\n", session.Validation().Attempts)
	}

	printSuccess(session.SuccessView())
}

func collectCredentials(reader *bufio.Reader, cfg config.FlowConfig) mfa.Credentials {
	deviceType := mfa.DeviceType(strings.ToUpper(prompt(reader, "Device type (SMS, EMAIL, TOTP, ...): ")))
	creds := mfa.Credentials{
		EnvironmentID: cfg.EnvironmentID,
		Username:      cfg.Username,
		DeviceType:    deviceType,
		WorkerToken:   cfg.WorkerToken,
		UserToken:     cfg.UserToken,
	}
	if deviceType.RequiresPhone() {
		creds.CountryCode = prompt(reader, "Country code: ")
		creds.Phone = prompt(reader, "Phone number: ")
	}
	if deviceType.RequiresEmail() {
		creds.Email = prompt(reader, "Email address: ")
	}
	creds.DeviceName = prompt(reader, "Nickname (optional): ")
	return creds
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

// devToken mints a short-lived token so the flow can run against a simulator
// that does not enforce auth. Real deployments supply MFA_WORKER_TOKEN.
func devToken(username string) string {
	claims := jwt.MapClaims{
		"sub": username,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("dev-secret"))
	if err != nil {
		return ""
	}
	return signed
}

func printSuccess(view *enrollflow.SuccessView) {
	fmt.Println("Device enrolled")
	fmt.Println("  ID:     ", view.DeviceID)
	fmt.Println("  Type:   ", view.Type)
	fmt.Println("  Status: ", view.Status)
	if target := view.Target(); target != "" {
		fmt.Println("  Target: ", target)
	}
}
