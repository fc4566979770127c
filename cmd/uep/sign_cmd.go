package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/radiant-labs/uep/pkg/contracts"
	"github.com/radiant-labs/uep/pkg/security"
)

func runSign(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("f", "-", "envelope document (path or - for stdin)")
	keystore := fs.String("keystore", keystoreDefault(), "keystore path")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	raw, err := readInput(*file)
	if err != nil {
		fmt.Fprintf(stderr, "uep sign: %v\n", err)
		return 1
	}
	var env contracts.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		fmt.Fprintf(stderr, "uep sign: decode: %v\n", err)
		return 1
	}

	ks, err := security.NewKeystore(*keystore)
	if err != nil {
		fmt.Fprintf(stderr, "uep sign: %v\n", err)
		return 1
	}
	tenant := env.TenantID()
	ref, err := ks.Provision(tenant)
	if err != nil {
		fmt.Fprintf(stderr, "uep sign: %v\n", err)
		return 1
	}
	signer, err := ks.Signer(tenant, ref)
	if err != nil {
		fmt.Fprintf(stderr, "uep sign: %v\n", err)
		return 1
	}

	sec, err := security.NewService().Sign(&env, signer)
	if err != nil {
		fmt.Fprintf(stderr, "uep sign: %v\n", err)
		return 1
	}
	env.Security = sec

	out, err := json.MarshalIndent(&env, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "uep sign: encode: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(out))
	return 0
}

func runVerify(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("f", "-", "envelope document (path or - for stdin)")
	keystore := fs.String("keystore", keystoreDefault(), "keystore path")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	raw, err := readInput(*file)
	if err != nil {
		fmt.Fprintf(stderr, "uep verify: %v\n", err)
		return 1
	}
	var env contracts.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		fmt.Fprintf(stderr, "uep verify: decode: %v\n", err)
		return 1
	}

	ks, err := security.NewKeystore(*keystore)
	if err != nil {
		fmt.Fprintf(stderr, "uep verify: %v\n", err)
		return 1
	}
	if err := security.NewService().Verify(context.Background(), &env, env.Security, ks); err != nil {
		fmt.Fprintf(stderr, "uep verify: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "signature valid")
	return 0
}

func runKeys(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("keys", flag.ContinueOnError)
	fs.SetOutput(stderr)
	keystore := fs.String("keystore", keystoreDefault(), "keystore path")
	tenant := fs.String("tenant", "default", "tenant id")
	rotate := fs.Bool("rotate", false, "rotate to a new key version")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ks, err := security.NewKeystore(*keystore)
	if err != nil {
		fmt.Fprintf(stderr, "uep keys: %v\n", err)
		return 1
	}

	var ref string
	if *rotate {
		ref, err = ks.Rotate(*tenant)
	} else {
		ref, err = ks.Provision(*tenant)
	}
	if err != nil {
		fmt.Fprintf(stderr, "uep keys: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "tenant %s active key %s\n", *tenant, ref)
	return 0
}
