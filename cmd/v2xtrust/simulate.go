package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/openv2x/v2xtrust/internal/ca"
	"github.com/openv2x/v2xtrust/internal/config"
	v2xcrypto "github.com/openv2x/v2xtrust/internal/crypto"
	"github.com/openv2x/v2xtrust/internal/hsm"
	"github.com/openv2x/v2xtrust/internal/message"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a self-contained trust round-trip",
	Long: `Run a self-contained trust round-trip, in memory.

Creates a CA and a fleet of vehicle HSMs, pre-issues a pseudonym pool to
each, and has every vehicle broadcast signed position messages that the
others verify. Part-way through, one vehicle's active certificate is
revoked; its previous broadcast is re-verified to show the rejection, and
the vehicle rotates onto a fresh certificate for the remaining rounds.

Examples:
  v2xtrust simulate
  v2xtrust simulate --vehicles 5 --messages 40 --rotation-threshold 10`,
	RunE: runSimulate,
}

var (
	simVehicles  int
	simMessages  int
	simPoolSize  int
	simThreshold int
	simValidity  time.Duration
)

func init() {
	flags := simulateCmd.Flags()
	flags.IntVar(&simVehicles, "vehicles", 3, "Number of vehicles")
	flags.IntVar(&simMessages, "messages", 20, "Messages broadcast per vehicle")
	flags.IntVar(&simPoolSize, "pool-size", config.DefaultPoolSize, "Certificates pre-issued per vehicle")
	flags.IntVar(&simThreshold, "rotation-threshold", config.DefaultRotationThreshold, "Messages per certificate before rotation")
	flags.DurationVar(&simValidity, "validity", config.DefaultCertValidity, "Certificate lifetime")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simVehicles < 1 {
		return fmt.Errorf("--vehicles must be at least 1, got %d", simVehicles)
	}
	if simMessages < 1 {
		return fmt.Errorf("--messages must be at least 1, got %d", simMessages)
	}

	logger := newLogger()

	authority, err := ca.Initialize(ca.NewMemoryStore(), ca.Config{})
	if err != nil {
		return err
	}
	logger.Info().Str("ca", authority.Certificate().Subject.CommonName).Msg("CA initialized")

	vehicles := make([]*hsm.HSM, 0, simVehicles)
	for i := 0; i < simVehicles; i++ {
		id := fmt.Sprintf("veh-%03d", i+1)
		v, err := hsm.New(id, ca.EntityVehicle, v2xcrypto.DefaultAlgorithm, simThreshold, logger)
		if err != nil {
			return err
		}
		if err := v.RequestCertificates(authority, simPoolSize, simValidity); err != nil {
			return err
		}
		vehicles = append(vehicles, v)
	}
	logger.Info().Int("vehicles", simVehicles).Int("pool_size", simPoolSize).Msg("fleet enrolled")

	// Revoke one vehicle's active certificate part-way through.
	revokeAt := simMessages / 2
	revoked := rand.Intn(simVehicles)
	lastEnv := make(map[string]*message.Envelope)

	var accepted, rejected int
	for round := 0; round < simMessages; round++ {
		if round == revokeAt {
			serial := vehicles[revoked].ActiveCertificate().SerialNumber.Uint64()
			if err := authority.Revoke(serial, ca.ReasonKeyCompromise); err != nil {
				return err
			}
			logger.Info().
				Str("vehicle", vehicles[revoked].OwnerID()).
				Uint64("serial", serial).
				Msg("certificate revoked")

			// The pre-revocation broadcast no longer verifies.
			if env := lastEnv[vehicles[revoked].OwnerID()]; env != nil {
				cert, err := authority.CertificateOf(env.Serial)
				if err != nil {
					return err
				}
				res, err := hsm.Verify(env, cert, authority, time.Now())
				if err != nil {
					return err
				}
				if !res.OK() {
					rejected++
					logger.Info().
						Str("vehicle", vehicles[revoked].OwnerID()).
						Str("reason", res.Status.String()).
						Msg("stale broadcast rejected")
				}
			}
		}

		for _, sender := range vehicles {
			payload := fmt.Sprintf("position update %d from %s", round, sender.OwnerID())
			env, rotation, err := sender.PrepareMessage(authority, payload)
			if err != nil {
				logger.Warn().Err(err).Str("vehicle", sender.OwnerID()).Msg("broadcast skipped")
				continue
			}
			lastEnv[sender.OwnerID()] = env
			if rotation != nil {
				logger.Info().
					Str("vehicle", sender.OwnerID()).
					Uint64("from", rotation.FromSerial).
					Uint64("to", rotation.ToSerial).
					Msg("certificate rotated")
			}

			cert, err := authority.CertificateOf(env.Serial)
			if err != nil {
				return err
			}
			for _, receiver := range vehicles {
				if receiver == sender {
					continue
				}
				res, err := receiver.VerifyMessage(env, cert, authority, time.Now())
				if err != nil {
					return err
				}
				if res.OK() {
					accepted++
				} else {
					rejected++
				}
			}
		}
	}

	fmt.Printf("Broadcast rounds: %d\n", simMessages)
	fmt.Printf("Accepted:         %d\n", accepted)
	fmt.Printf("Rejected:         %d\n", rejected)
	fmt.Printf("Revoked:          %d\n", len(authority.Revoked()))
	return nil
}
