package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lncommit/build"
	"github.com/lightningnetwork/lncommit/lntypes"
	"github.com/lightningnetwork/lncommit/lnwallet"
	"github.com/lightningnetwork/lncommit/lnwallet/chainfee"
	"github.com/lightningnetwork/lncommit/lnwallet/chansigner"
	"github.com/lightningnetwork/lncommit/lnwire"
)

const (
	defaultCapacity     = 1_000_000
	defaultLocalBalance = 500_000_000
	defaultFeeRate      = int64(chainfee.FeePerKwFloor)
	defaultDustLimit    = 354
	defaultCsvDelay     = 144
	defaultConfTarget   = 6
	defaultLocalSeed    = "0101010101010101010101010101010101010101010101010101010101010101"
	defaultRemoteSeed   = "0202020202020202020202020202020202020202020202020202020202020202"
	defaultFundingPoint = "0000000000000000000000000000000000000000000000000000000000000000:0"

	// maxAcceptedHtlcs is the largest number of HTLCs a commitment may
	// carry in each direction.
	maxAcceptedHtlcs = 483
)

// chanTypes maps the channel type names of the command line to their feature
// bits.
var chanTypes = map[string]func() lnwire.ChannelType{
	"staticremotekey": lnwire.StaticRemoteKeyChannelType,
	"anchors":         lnwire.AnchorsChannelType,
	"zerofee":         lnwire.ZeroFeeCommitmentsChannelType,
}

// networks maps the network names of the command line to their parameters.
var networks = map[string]*chaincfg.Params{
	"mainnet": &chaincfg.MainNetParams,
	"testnet": &chaincfg.TestNet3Params,
	"regtest": &chaincfg.RegressionNetParams,
	"signet":  &chaincfg.SigNetParams,
}

// Config holds the options of commitcalc.
//
//nolint:ll
type Config struct {
	ChanType        string   `long:"chantype" description:"The type of the channel" choice:"staticremotekey" choice:"anchors" choice:"zerofee"`
	Network         string   `long:"network" description:"The network the keys are derived for" choice:"mainnet" choice:"testnet" choice:"regtest" choice:"signet"`
	Capacity        int64    `long:"capacity" description:"The value of the funding output in satoshis"`
	LocalBalance    uint64   `long:"localbalance" description:"Our balance in msat, including the HTLCs we offered that are still pending"`
	Initiator       bool     `long:"initiator" description:"We opened the channel and pay the commitment fee"`
	Remote          bool     `long:"remote" description:"Build the counterparty's commitment instead of ours"`
	CommitNum       uint64   `long:"commitnum" description:"The number of the commitment, counting up from zero"`
	FeeRate         int64    `long:"feerate" description:"The commitment fee rate in sat/kw"`
	FeeTable        string   `long:"feetable" description:"A JSON fee table of the form {\"fee_by_block_target\": {\"<target>\": <sat/kvB>}} to estimate the fee rate from instead of using --feerate"`
	ConfTarget      uint32   `long:"conftarget" description:"The confirmation target the fee rate is estimated for when --feetable is set"`
	DustLimit       int64    `long:"dustlimit" description:"The dust limit of both parties in satoshis"`
	CsvDelay        uint16   `long:"csvdelay" description:"The to_local delay both parties impose on each other"`
	HTLCs           []string `long:"htlc" description:"A pending HTLC as <offered|received>:<amount msat>:<cltv>, relative to the broadcaster. May be given multiple times"`
	FundingOutpoint string   `long:"fundingoutpoint" description:"The funding outpoint as <txid>:<index>"`
	LocalSeed       string   `long:"localseed" description:"Hex encoded seed of our channel keys"`
	RemoteSeed      string   `long:"remoteseed" description:"Hex encoded seed of the counterparty's channel keys"`
	StateDB         string   `long:"statedb" description:"Sign the commitment through the policy enforcing signer, keeping its state in this database"`
	PrintMetrics    bool     `long:"printmetrics" description:"Print the counters of the policy enforcing signer after signing"`

	Signer    *chansigner.Config        `group:"signer" namespace:"signer"`
	Estimator *lnwallet.EstimatorConfig `group:"estimator" namespace:"estimator"`
	Log       *build.LogConfig          `group:"log" namespace:"log"`
}

// DefaultConfig returns the default options.
func DefaultConfig() *Config {
	return &Config{
		ChanType:        "anchors",
		Network:         "regtest",
		Capacity:        defaultCapacity,
		LocalBalance:    defaultLocalBalance,
		Initiator:       true,
		FeeRate:         defaultFeeRate,
		ConfTarget:      defaultConfTarget,
		DustLimit:       defaultDustLimit,
		CsvDelay:        defaultCsvDelay,
		FundingOutpoint: defaultFundingPoint,
		LocalSeed:       defaultLocalSeed,
		RemoteSeed:      defaultRemoteSeed,
		Signer: &chansigner.Config{
			Mode: chansigner.ModeRefuse,
		},
		Estimator: lnwallet.DefaultEstimatorConfig(),
		Log:       build.DefaultLogConfig(),
	}
}

// channelConfig is the validated form of the options.
type channelConfig struct {
	chanType        lnwire.ChannelType
	net             *chaincfg.Params
	capacity        btcutil.Amount
	localBalance    lnwire.MilliSatoshi
	feeRate         chainfee.SatPerKWeight
	dustLimit       btcutil.Amount
	htlcs           []*lnwallet.HTLC
	fundingOutpoint wire.OutPoint
	localSeed       []byte
	remoteSeed      []byte
}

// validate checks the options and converts them to their domain types.
func (c *Config) validate() (*channelConfig, error) {
	newChanType, ok := chanTypes[c.ChanType]
	if !ok {
		return nil, fmt.Errorf("unknown channel type %q", c.ChanType)
	}

	net, ok := networks[c.Network]
	if !ok {
		return nil, fmt.Errorf("unknown network %q", c.Network)
	}

	if c.Capacity <= 0 || c.Capacity > int64(btcutil.MaxSatoshi) {
		return nil, fmt.Errorf("invalid capacity %v", c.Capacity)
	}
	capacity := btcutil.Amount(c.Capacity)

	localBalance := lnwire.MilliSatoshi(c.LocalBalance)
	if localBalance > lnwire.NewMSatFromSatoshis(capacity) {
		return nil, fmt.Errorf("local balance %v exceeds capacity %v",
			localBalance, capacity)
	}

	feeRate, err := c.estimateFeeRate()
	if err != nil {
		return nil, err
	}

	dustLimit := btcutil.Amount(c.DustLimit)
	if dustLimit < lnwallet.DustLimitUnknownWitness() {
		return nil, fmt.Errorf("dust limit %v below %v", dustLimit,
			lnwallet.DustLimitUnknownWitness())
	}

	if len(c.HTLCs) > maxAcceptedHtlcs*2 {
		return nil, fmt.Errorf("too many htlcs: %v", len(c.HTLCs))
	}
	htlcs := make([]*lnwallet.HTLC, 0, len(c.HTLCs))
	for _, arg := range c.HTLCs {
		htlc, err := parseHTLC(arg)
		if err != nil {
			return nil, err
		}
		htlcs = append(htlcs, htlc)
	}

	fundingOutpoint, err := wire.NewOutPointFromString(c.FundingOutpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid funding outpoint: %w", err)
	}

	localSeed, err := parseSeed(c.LocalSeed)
	if err != nil {
		return nil, fmt.Errorf("invalid local seed: %w", err)
	}
	remoteSeed, err := parseSeed(c.RemoteSeed)
	if err != nil {
		return nil, fmt.Errorf("invalid remote seed: %w", err)
	}

	if err := c.Signer.Validate(); err != nil {
		return nil, err
	}
	if err := c.Estimator.Validate(); err != nil {
		return nil, err
	}

	return &channelConfig{
		chanType:        newChanType(),
		net:             net,
		capacity:        capacity,
		localBalance:    localBalance,
		feeRate:         feeRate,
		dustLimit:       dustLimit,
		htlcs:           htlcs,
		fundingOutpoint: *fundingOutpoint,
		localSeed:       localSeed,
		remoteSeed:      remoteSeed,
	}, nil
}

// feeEstimator returns the fee table of the options, or the static fee rate
// if none was given.
func (c *Config) feeEstimator() (chainfee.Estimator, error) {
	if c.FeeTable == "" {
		return chainfee.NewStaticEstimator(
			chainfee.SatPerKWeight(c.FeeRate),
			chainfee.FeePerKwFloor,
		), nil
	}

	f, err := os.Open(c.FeeTable)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	estimator, err := chainfee.ParseSparseConfFees(
		f, chainfee.FeePerKwFloor,
	)
	if err != nil {
		return nil, err
	}

	return estimator, nil
}

// estimateFeeRate returns the commitment fee rate of the options.
func (c *Config) estimateFeeRate() (chainfee.SatPerKWeight, error) {
	estimator, err := c.feeEstimator()
	if err != nil {
		return 0, err
	}

	feeRate, err := estimator.EstimateFeePerKW(c.ConfTarget)
	if err != nil {
		return 0, err
	}

	if feeRate < estimator.RelayFeePerKW() {
		return 0, fmt.Errorf("fee rate %v below relay fee of %v",
			feeRate, estimator.RelayFeePerKW())
	}

	return feeRate, nil
}

// parseSeed decodes a hex encoded key seed.
func parseSeed(seed string) ([]byte, error) {
	raw, err := hex.DecodeString(seed)
	if err != nil {
		return nil, err
	}
	if len(raw) < 16 || len(raw) > 64 {
		return nil, fmt.Errorf("seed must be between 16 and 64 bytes, "+
			"got %v", len(raw))
	}

	return raw, nil
}

// parseHTLC parses an HTLC given as <offered|received>:<amount msat>:<cltv>.
// The payment hash is the hash of the argument.
func parseHTLC(arg string) (*lnwallet.HTLC, error) {
	fields := strings.Split(arg, ":")
	if len(fields) != 3 {
		return nil, fmt.Errorf("invalid htlc %q, expected "+
			"<offered|received>:<amount msat>:<cltv>", arg)
	}

	var offered bool
	switch fields[0] {
	case "offered":
		offered = true

	case "received":

	default:
		return nil, fmt.Errorf("invalid htlc direction %q", fields[0])
	}

	amt, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid htlc amount %q: %w", fields[1],
			err)
	}

	cltv, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid htlc cltv %q: %w", fields[2],
			err)
	}

	return &lnwallet.HTLC{
		Offered:       offered,
		Amount:        lnwire.MilliSatoshi(amt),
		RefundTimeout: uint32(cltv),
		RHash:         lntypes.Hash(chainhash.HashH([]byte(arg))),
	}, nil
}
