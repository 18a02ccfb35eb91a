package main

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btclog/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/lncommit/build"
	"github.com/lightningnetwork/lncommit/keychain"
	"github.com/lightningnetwork/lncommit/lntypes"
	"github.com/lightningnetwork/lncommit/lnwallet"
	"github.com/lightningnetwork/lncommit/lnwallet/chansigner"
	"github.com/lightningnetwork/lncommit/lnwire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// log is the logger of the tool itself.
var log = btclog.Disabled

func main() {
	cfg := DefaultConfig()
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}

		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogging routes the loggers of every subsystem to stdout.
func setupLogging(cfg *build.LogConfig) error {
	logMgr := build.NewSubLoggerManager(cfg.NewHandler(os.Stdout))

	log = logMgr.GenSubLogger("CCLC")
	lnwallet.UseLogger(logMgr.GenSubLogger(lnwallet.Subsystem))
	chansigner.UseLogger(logMgr.GenSubLogger(chansigner.Subsystem))

	return build.ParseAndSetDebugLevels(cfg.DebugLevel, logMgr)
}

// channel holds both sides of the channel the tool computes.
type channel struct {
	signers lntypes.Dual[*chansigner.InMemorySigner]
	params  lntypes.Dual[*lnwallet.ChannelTransactionParameters]
}

// newChannel derives the keys of both parties and their view of the channel
// parameters.
func newChannel(cfg *Config, chanCfg *channelConfig) (*channel, error) {
	newSigner := func(seed []byte) (*chansigner.InMemorySigner, error) {
		keyRing, err := keychain.NewHDKeyRing(seed, chanCfg.net)
		if err != nil {
			return nil, err
		}

		return chansigner.NewInMemorySigner(keyRing)
	}

	local, err := newSigner(chanCfg.localSeed)
	if err != nil {
		return nil, err
	}
	remote, err := newSigner(chanCfg.remoteSeed)
	if err != nil {
		return nil, err
	}
	signers := lntypes.Dual[*chansigner.InMemorySigner]{
		Local:  local,
		Remote: remote,
	}
	pubKeys := lntypes.MapDual(
		signers,
		func(s *chansigner.InMemorySigner) lnwallet.ChannelPublicKeys {
			return *s.PubKeys()
		},
	)

	type params = lnwallet.ChannelTransactionParameters
	side := func(holder lntypes.ChannelParty) *params {
		return &lnwallet.ChannelTransactionParameters{
			HolderPubKeys:              pubKeys.GetForParty(holder),
			HolderSelectedContestDelay: cfg.CsvDelay,
			IsOutboundFromHolder:       cfg.Initiator == holder.IsLocal(),
			CounterpartyParameters: fn.Some(
				lnwallet.CounterpartyChannelTransactionParameters{
					PubKeys: pubKeys.GetForParty(
						holder.CounterParty(),
					),
					SelectedContestDelay: cfg.CsvDelay,
				},
			),
			FundingOutpoint: fn.Some(chanCfg.fundingOutpoint),
			ChannelType:     chanCfg.chanType,
			ChannelValue:    chanCfg.capacity,
		}
	}

	c := &channel{
		signers: signers,
		params: lntypes.Dual[*params]{
			Local:  side(lntypes.Local),
			Remote: side(lntypes.Remote),
		},
	}
	local.ProvideChannelParameters(c.params.Local)
	remote.ProvideChannelParameters(c.params.Remote)

	return c, nil
}

// cloneHTLCs copies the HTLCs, a build sets their output indexes.
func cloneHTLCs(htlcs []*lnwallet.HTLC) []*lnwallet.HTLC {
	clones := make([]*lnwallet.HTLC, 0, len(htlcs))
	for _, htlc := range htlcs {
		clone := *htlc
		clones = append(clones, &clone)
	}

	return clones
}

// buildCommitment builds the commitment of the broadcaster as seen by the
// holder. HTLCs are given relative to the broadcaster.
func (c *channel) buildCommitment(cfg *Config, chanCfg *channelConfig,
	holder, broadcaster lntypes.ChannelParty) (
	*lnwallet.CommitmentTransaction, *lnwallet.CommitmentStats, error) {

	signer := c.signers.GetForParty(broadcaster)
	point, err := signer.GetPerCommitmentPoint(
		lnwallet.CommitmentIndex(cfg.CommitNum),
	)
	if err != nil {
		return nil, nil, err
	}

	// The balance of the remote party is whatever the local one doesn't
	// own.
	valueToHolder := chanCfg.localBalance
	if holder.IsRemote() {
		valueToHolder = lnwire.NewMSatFromSatoshis(chanCfg.capacity) -
			chanCfg.localBalance
	}

	builder := lnwallet.NewSpecTxBuilder()
	builder.ProvidePopulatedParameters(c.params.GetForParty(holder))

	return builder.BuildCommitment(&lnwallet.CommitmentRequest{
		Local:                holder == broadcaster,
		CommitmentNumber:     cfg.CommitNum,
		PerCommitmentPoint:   point,
		ValueToHolder:        valueToHolder,
		HTLCs:                cloneHTLCs(chanCfg.htlcs),
		FeePerKw:             chanCfg.feeRate,
		BroadcasterDustLimit: chanCfg.dustLimit,
	})
}

// availableBalances runs the estimator over the pending HTLCs.
func availableBalances(cfg *Config,
	chanCfg *channelConfig) (*lnwallet.AvailableBalances, error) {

	pending := make([]lnwallet.HTLCAmountDirection, 0, len(chanCfg.htlcs))
	for _, htlc := range chanCfg.htlcs {
		pending = append(pending, lnwallet.HTLCAmountDirection{
			OutboundFromHolder: htlc.Offered != cfg.Remote,
			Amount:             htlc.Amount,
		})
	}

	constraints := lnwallet.ChannelConstraints{
		DustLimit:        chanCfg.dustLimit,
		ChanReserve:      chanCfg.capacity / 100,
		MaxPendingAmount: lnwire.NewMSatFromSatoshis(chanCfg.capacity),
		MinHTLC:          1,
		MaxAcceptedHtlcs: maxAcceptedHtlcs,
	}

	estimator := lnwallet.NewBalanceEstimator(cfg.Estimator)

	return estimator.AvailableBalances(&lnwallet.BalanceRequest{
		IsOutboundFromHolder: cfg.Initiator,
		ChannelType:          chanCfg.chanType,
		ChannelValue:         chanCfg.capacity,
		ValueToHolder:        chanCfg.localBalance,
		PendingHTLCs:         pending,
		FeePerKw:             chanCfg.feeRate,
		Holder:               constraints,
		Counterparty:         constraints,
	})
}

// serializeTx returns the hex encoding of the transaction.
func serializeTx(tx *wire.MsgTx) (string, error) {
	var b bytes.Buffer
	if err := tx.Serialize(&b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b.Bytes()), nil
}

// signCommitment signs the commitment of the broadcaster through our policy
// enforcing signer, whose state is kept in the state database across runs.
func (c *channel) signCommitment(cfg *Config, chanCfg *channelConfig,
	broadcaster lntypes.ChannelParty,
	commitTx *lnwallet.CommitmentTransaction) error {

	store, err := chansigner.OpenKVStateStore(cfg.StateDB)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Errorf("Unable to close state db: %v", err)
		}
	}()

	state, err := store.LoadOrCreateState(chanCfg.fundingOutpoint)
	if err != nil {
		return err
	}
	signer := chansigner.NewEnforcingSignerWithState(
		c.signers.Local, state, cfg.Signer,
	)

	if broadcaster.IsRemote() {
		sig, _, err := signer.SignCounterpartyCommitment(commitTx)
		if err != nil {
			return err
		}
		fmt.Printf("counterparty commitment sig: %x\n", sig.Serialize())

		return store.PutState(chanCfg.fundingOutpoint, state)
	}

	// The counterparty signs our commitment from its own view.
	remoteView, _, err := c.buildCommitment(
		cfg, chanCfg, lntypes.Remote, lntypes.Local,
	)
	if err != nil {
		return err
	}
	sig, htlcSigs, err := c.signers.Remote.SignCounterpartyCommitment(
		remoteView,
	)
	if err != nil {
		return err
	}

	holderCommit := &lnwallet.HolderCommitmentTransaction{
		CommitmentTransaction: commitTx,
		CounterpartySig:       sig,
		CounterpartyHtlcSigs:  htlcSigs,
	}
	if err := signer.ValidateHolderCommitment(holderCommit); err != nil {
		return err
	}

	signedTx, err := signer.SignHolderCommitment(holderCommit)
	if err != nil {
		return err
	}
	signedHex, err := serializeTx(signedTx)
	if err != nil {
		return err
	}
	fmt.Printf("signed commitment: %v\n", signedHex)

	return store.PutState(chanCfg.fundingOutpoint, state)
}

// registerMetrics registers the signer counters with the registry. A registry
// that carries them from an earlier run is fine.
func registerMetrics(registry prometheus.Registerer) error {
	err := chansigner.RegisterMetrics(registry)

	var alreadyErr prometheus.AlreadyRegisteredError
	if errors.As(err, &alreadyErr) {
		return nil
	}

	return err
}

// printMetrics prints the signer counters gathered so far.
func printMetrics(gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return err
	}

	for _, family := range families {
		if !strings.HasPrefix(family.GetName(), "lncommit_") {
			continue
		}

		for _, metric := range family.GetMetric() {
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, label := range metric.GetLabel() {
				labels = append(labels, fmt.Sprintf("%v=%q",
					label.GetName(), label.GetValue()))
			}

			fmt.Printf("%v{%v} %v\n", family.GetName(),
				strings.Join(labels, ","),
				metric.GetCounter().GetValue())
		}
	}

	return nil
}

func run(cfg *Config) error {
	if err := setupLogging(cfg.Log); err != nil {
		return err
	}

	chanCfg, err := cfg.validate()
	if err != nil {
		return err
	}

	c, err := newChannel(cfg, chanCfg)
	if err != nil {
		return err
	}

	broadcaster := lntypes.Local
	if cfg.Remote {
		broadcaster = lntypes.Remote
	}

	log.Infof("Building %v commitment %v of %v channel %v at %v",
		broadcaster, cfg.CommitNum, cfg.ChanType,
		chanCfg.fundingOutpoint, chanCfg.feeRate)

	commitTx, stats, err := c.buildCommitment(
		cfg, chanCfg, lntypes.Local, broadcaster,
	)
	if err != nil {
		return err
	}

	txHex, err := serializeTx(commitTx.Tx())
	if err != nil {
		return err
	}

	fmt.Printf("txid: %v\n", commitTx.TxHash())
	fmt.Printf("stats: %v\n", stats)
	fmt.Printf("to_broadcaster: %v\n", commitTx.ToBroadcasterValue)
	fmt.Printf("to_countersignatory: %v\n",
		commitTx.ToCountersignatoryValue)
	for _, htlc := range commitTx.HTLCs {
		fmt.Printf("output %v: %v\n", htlc.OutputIndex.UnwrapOr(0),
			htlc.String())
	}
	fmt.Printf("tx: %v\n", txHex)

	balances, err := availableBalances(cfg, chanCfg)
	if err != nil {
		return err
	}
	fmt.Printf("balances: %v\n", balances)

	if cfg.StateDB == "" {
		return nil
	}

	if err := registerMetrics(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	err = c.signCommitment(cfg, chanCfg, broadcaster, commitTx)
	if err != nil {
		return err
	}

	if !cfg.PrintMetrics {
		return nil
	}

	return printMetrics(prometheus.DefaultGatherer)
}
