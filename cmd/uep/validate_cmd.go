package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/radiant-labs/uep/pkg/contracts"
	"github.com/radiant-labs/uep/pkg/envelope"
)

func runValidate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("f", "-", "envelope document (path or - for stdin)")
	wireOnly := fs.Bool("wire-only", false, "check only the wire schema, skip semantic rules")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	raw, err := readInput(*file)
	if err != nil {
		fmt.Fprintf(stderr, "uep validate: %v\n", err)
		return 1
	}

	if err := envelope.ValidateWire(raw); err != nil {
		fmt.Fprintf(stderr, "uep validate: wire schema: %v\n", err)
		return 1
	}
	if *wireOnly {
		fmt.Fprintln(stdout, "valid (wire schema)")
		return 0
	}

	var env contracts.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		fmt.Fprintf(stderr, "uep validate: decode: %v\n", err)
		return 1
	}

	result := envelope.NewValidator().Validate(&env)
	if !result.Valid {
		for _, verr := range result.Errors {
			fmt.Fprintf(stderr, "%s: %s: %s\n", verr.Field, verr.Code, verr.Message)
		}
		return 1
	}
	fmt.Fprintln(stdout, "valid")
	return 0
}

func runInspect(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("f", "-", "envelope document (path or - for stdin)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	raw, err := readInput(*file)
	if err != nil {
		fmt.Fprintf(stderr, "uep inspect: %v\n", err)
		return 1
	}
	var env contracts.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		fmt.Fprintf(stderr, "uep inspect: decode: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "envelope   %s\n", env.EnvelopeID)
	fmt.Fprintf(stdout, "type       %s (%s)\n", env.Type, env.Type.Class())
	fmt.Fprintf(stdout, "spec       %s\n", env.SpecVersion)
	fmt.Fprintf(stdout, "source     %s/%s tenant=%s\n", env.Source.Type, env.Source.ID, env.TenantID())
	if env.Destination != nil {
		fmt.Fprintf(stdout, "dest       %s/%s key=%s\n", env.Destination.Type, env.Destination.ID, env.Destination.RoutingKey)
	}
	fmt.Fprintf(stdout, "payload    %s delivery=%s", env.Payload.ContentType, env.Payload.Delivery)
	if env.Payload.SizeBytes != nil {
		fmt.Fprintf(stdout, " size=%d", *env.Payload.SizeBytes)
	}
	if env.Payload.Hash != nil {
		fmt.Fprintf(stdout, " %s=%s", env.Payload.Hash.Algorithm, env.Payload.Hash.Digest)
	}
	fmt.Fprintln(stdout)
	if env.Streaming != nil {
		fmt.Fprintf(stdout, "stream     %s seq=%d", env.Streaming.StreamID, env.Streaming.Sequence.Current)
		if env.Streaming.Sequence.Total != nil {
			fmt.Fprintf(stdout, "/%d", *env.Streaming.Sequence.Total)
		}
		fmt.Fprintln(stdout)
	}
	if env.Security != nil {
		fmt.Fprintf(stdout, "security   sig=%s key=%s\n", env.Security.SignatureAlgorithm, env.Security.KeyRef)
	}
	return 0
}
