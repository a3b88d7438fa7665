// Package wormhole implements client-side session orchestration for
// magic-wormhole style file transfer.
//
// Two peers exchange a file by agreeing on a short human-readable code.
// The sender allocates the code on a rendezvous server; the receiver
// types it in. Both sides then run a code-authenticated key exchange over
// the rendezvous mailbox and stream the payload through an encrypted
// transit connection, so the server never sees plaintext and a wrong code
// fails the handshake instead of leaking data.
//
// # Getting Started
//
// The sending side allocates a code, shows it to the peer, and sends:
//
//	client := wormhole.NewClient(wormhole.NewOptions())
//
//	code, err := client.CreateSendCode(0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Wormhole code:", code)
//
//	err = client.SendFile("report.pdf", func(ev wormhole.ProgressEvent) {
//	    fmt.Printf("\rsent %d%%", ev.Percent)
//	})
//
// The receiving side enters the code, inspects the offer, and accepts:
//
//	offer, err := client.ConnectReceive(code)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("incoming: %s (%d bytes)\n", offer.Filename, offer.Filesize)
//
//	path, err := client.AcceptTransfer(".", func(ev wormhole.ProgressEvent) {
//	    fmt.Printf("\rreceived %d%%", ev.Percent)
//	})
//
// RejectTransfer declines a pending offer, and Cancel aborts whatever the
// session is doing, interrupting in-flight network operations.
//
// # Architecture
//
// The package is a thin orchestrator over four subsystems:
//
//   - wordlist: code generation and parsing
//   - rendezvous: mailbox server connection and the authenticated key
//     exchange that turns a shared code into a session key
//   - transfer: the offer/answer negotiation protocol
//   - transit: the encrypted record stream that carries file bytes
//
// A Client holds exactly one session at a time; starting a new receive
// displaces and releases whatever the previous session held. Errors carry
// a Kind (ErrorKindInvalidCode, ErrorKindFileNotFound, and so on) that
// callers inspect with errors.As, or match with errors.Is against the
// sentinels ErrCancelled and ErrNoActiveSession.
package wormhole
