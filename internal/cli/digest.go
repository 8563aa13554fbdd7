package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/multiformats/go-multihash"
	"github.com/spf13/cobra"

	"github.com/roach88/kelsen/internal/digest"
)

// DigestInfo shows a digest in every form kelsen accepts.
type DigestInfo struct {
	ID       string `json:"id"`
	CID      string `json:"cid"`
	Function uint8  `json:"function"`
	Name     string `json:"name,omitempty"`
	Size     uint8  `json:"size"`
	Hash     string `json:"hash"`
}

// DigestOptions holds flags shared by the digest subcommands.
type DigestOptions struct {
	*RootOptions
	Encoding string // multibase for the CID form
	Function string // encode: function name or code
	File     string // sum: read the blob from a file
}

// NewDigestCommand creates the digest command and its subcommands.
func NewDigestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DigestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Convert between content identifiers and multihash parts",
		Long: `Organ, entry and procedure metadata is a multihash digest. Externally it
is a base58btc identifier ("Qm..." for sha2-256) or a CID; internally a
function code, a size and the hash bytes.`,
	}
	cmd.PersistentFlags().StringVar(&opts.Encoding, "encoding", "base32", "multibase of the CID form")

	encode := &cobra.Command{
		Use:     "encode <hex-hash>",
		Short:   "Build an identifier from a hash",
		Example: `  kelsen digest encode --function sha2-256 0x2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigestEncode(opts, args[0], cmd)
		},
	}
	encode.Flags().StringVar(&opts.Function, "function", "sha2-256", "multihash function name or code")

	decode := &cobra.Command{
		Use:   "decode <id>",
		Short: "Split an identifier or CID into its parts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigestDecode(opts, args[0], cmd)
		},
	}

	sum := &cobra.Command{
		Use:   "sum [text]",
		Short: "Hash a metadata blob with sha2-256",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigestSum(opts, args, cmd)
		},
	}
	sum.Flags().StringVar(&opts.File, "file", "", "hash the contents of a file")

	cmd.AddCommand(encode, decode, sum)
	return cmd
}

func runDigestEncode(opts *DigestOptions, hash string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	fn, err := functionCode(opts.Function)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, err.Error(), nil)
	}
	if !strings.HasPrefix(hash, "0x") {
		hash = "0x" + hash
	}
	raw, err := hexutil.Decode(hash)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, "invalid hash: "+err.Error(), nil)
	}
	if len(raw) > 255 {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, fmt.Sprintf("hash is %d bytes, at most 255 fit", len(raw)), nil)
	}
	d, err := digest.Encode(fn, uint8(len(raw)), raw)
	if err != nil {
		return formatter.Fail(ExitCommandError, errorCode(err), err.Error(), nil)
	}
	return outputDigest(opts, formatter, d)
}

func runDigestDecode(opts *DigestOptions, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	d, err := digest.Parse(id)
	if err != nil {
		return formatter.Fail(ExitFailure, errorCode(err), err.Error(), nil)
	}
	return outputDigest(opts, formatter, d)
}

func runDigestSum(opts *DigestOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	var data []byte
	switch {
	case opts.File != "" && len(args) > 0:
		return formatter.Fail(ExitCommandError, ErrCodeArgs, "give either text or --file, not both", nil)
	case opts.File != "":
		var err error
		if data, err = os.ReadFile(opts.File); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeArgs, err.Error(), nil)
		}
	case len(args) == 1:
		data = []byte(args[0])
	default:
		return formatter.Fail(ExitCommandError, ErrCodeArgs, "nothing to hash: give text or --file", nil)
	}
	return outputDigest(opts, formatter, digest.Sum(data))
}

func outputDigest(opts *DigestOptions, formatter *OutputFormatter, d digest.Digest) error {
	enc, err := digest.EncodingByName(opts.Encoding)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, err.Error(), nil)
	}
	c, err := d.CIDString(enc)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, err.Error(), nil)
	}
	info := DigestInfo{
		ID:       d.ExternalID(),
		CID:      c,
		Function: d.Function,
		Name:     multihash.Codes[uint64(d.Function)],
		Size:     d.Size,
		Hash:     hexutil.Encode(d.Hash),
	}
	if formatter.JSON() {
		return formatter.Success(info)
	}
	w := formatter.Writer
	fmt.Fprintf(w, "ID:       %s\n", info.ID)
	fmt.Fprintf(w, "CID:      %s\n", info.CID)
	fmt.Fprintf(w, "Function: 0x%02x %s\n", info.Function, info.Name)
	fmt.Fprintf(w, "Size:     %d\n", info.Size)
	fmt.Fprintf(w, "Hash:     %s\n", info.Hash)
	return nil
}

// functionCode resolves a multihash function name ("sha2-256") or a
// decimal or 0x code. Digests store the code in a single byte.
func functionCode(s string) (uint8, error) {
	code, ok := multihash.Names[strings.ToLower(s)]
	if !ok {
		n, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("unknown multihash function %q", s)
		}
		code = n
	}
	if code > 0xff {
		return 0, fmt.Errorf("multihash function %q (0x%x) does not fit in one byte", s, code)
	}
	return uint8(code), nil
}
