// Keygen mints a device access key for provisioning. The key is also stored
// on the device row, so after minting it must be written there (or rotated
// through the API) before the device can push.
package main

import (
	"flag"
	"fmt"
	"os"

	"aquasense/internal/tokens"
)

func main() {
	deviceID := flag.String("device-id", "", "device id to mint a key for")
	secret := flag.String("secret", os.Getenv("AUTH_SECRET"), "signing secret (defaults to AUTH_SECRET)")
	flag.Parse()

	if *deviceID == "" {
		fmt.Fprintln(os.Stderr, "keygen: -device-id is required")
		os.Exit(2)
	}

	service, err := tokens.New(*secret, 0, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		os.Exit(1)
	}

	key, err := service.IssueDeviceKey(*deviceID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(key)
}
