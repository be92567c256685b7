// Package rabbitair provides a client for controlling Rabbit Air air
// purifiers over the local network.
//
// # Basic Usage
//
//	ctx := context.Background()
//	client, err := rabbitair.NewClient("192.168.1.60", "0123456789abcdef0123456789abcdef")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	state, err := client.GetState(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if speed, ok := state.Speed(); ok {
//	    fmt.Println("speed:", speed)
//	}
//
//	_, err = client.SetState(ctx, rabbitair.SetRequest{
//	    Power: rabbitair.Ptr(true),
//	    Mode:  rabbitair.Ptr(rabbitair.ModeAuto),
//	})
//
// # Configuration
//
// The client can be configured using functional options:
//
//	client, err := rabbitair.NewClient(host, token,
//	    rabbitair.WithPort(9009),
//	    rabbitair.WithRequestTimeout(time.Second),
//	    rabbitair.WithMaxRetries(4),
//	    rabbitair.WithLogger(slog.Default()),
//	)
//
// # Protocol
//
// Requests and responses are single UDP datagrams on port 9009 by default.
// WithTCP switches to a TCP stream on the same port, where each message is
// prefixed with its length as a little endian uint16.
//
// ProtocolFirmware, the default, is the layout devices ship with: a JSON
// object {"id","cmd","ts","data"} padded with PKCS#7, encrypted with
// AES-CBC under the token and followed by the IV. Before its first request
// the client reads the device clock (command 9) and stamps every later
// request with it. This layout does not detect tampering.
//
// ProtocolSealed, selected with WithProtocol, carries a cleartext header, a
// 24-byte nonce, a CBOR payload keyed by numeric field tags, and a Poly1305
// tag. The payload key is derived with HKDF-SHA256 from the access token and
// the nonce, and sealed with XChaCha20-Poly1305.
//
// In both layouts every attempt, retries included, uses a new request id and
// replies are matched on it.
//
// # Errors
//
// Returned errors wrap one of ErrEncoding, ErrDecoding, ErrAuthentication,
// ErrDecryption, ErrNetwork, ErrTimeout, ErrValidation, ErrBusy, ErrDevice
// or ErrClosed. Use errors.Is to tell them apart.
package rabbitair
