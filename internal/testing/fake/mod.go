// Package fake provides fake implementations of the interfaces of the module.
// They can be configured to return errors when a unit test needs to cover a
// failure path.
package fake

import (
	"encoding/json"
	"io"

	"github.com/cth001/exonum/crypto"
	"github.com/cth001/exonum/serde"
	"golang.org/x/xerrors"
)

// GoodFormat is the format of a context that always succeeds.
const GoodFormat = serde.Format("FakeGood")

// BadFormat is the format of a context that always fails.
const BadFormat = serde.Format("FakeBad")

var fakeErr = xerrors.New("fake error")

var fakeFormatValue = []byte("fake format")

// GetError returns the fake error.
func GetError() error {
	return fakeErr
}

// Err returns the message of a wrapped fake error.
func Err(msg string) string {
	return msg + ": " + fakeErr.Error()
}

// GetFakeFormatValue returns the bytes encoded by the fake format.
func GetFakeFormatValue() []byte {
	return append([]byte{}, fakeFormatValue...)
}

// Call keeps track of the calls of a function.
type Call struct {
	calls [][]interface{}
}

// Get returns the ith argument of the nth call.
func (c *Call) Get(n, i int) interface{} {
	return c.calls[n][i]
}

// Len returns the number of calls.
func (c *Call) Len() int {
	if c == nil {
		return 0
	}

	return len(c.calls)
}

// Add records a call with its arguments.
func (c *Call) Add(args ...interface{}) {
	if c != nil {
		c.calls = append(c.calls, args)
	}
}

// Message is a fake implementation of a serde message.
//
// - implements serde.Message
type Message struct {
	Digest []byte
}

// Serialize implements serde.Message.
func (m Message) Serialize(serde.Context) ([]byte, error) {
	return GetFakeFormatValue(), nil
}

// Fingerprint implements serde.Fingerprinter.
func (m Message) Fingerprint(w io.Writer) error {
	_, err := w.Write(m.Digest)
	return err
}

// MessageFactory is a fake implementation of a serde factory.
//
// - implements serde.Factory
type MessageFactory struct {
	err error
}

// NewBadMessageFactory returns a factory that always fails.
func NewBadMessageFactory() MessageFactory {
	return MessageFactory{err: fakeErr}
}

// Deserialize implements serde.Factory.
func (f MessageFactory) Deserialize(serde.Context, []byte) (serde.Message, error) {
	return Message{}, f.err
}

// Format is a fake format engine that returns the configured message when
// decoding, and the fake value when encoding.
//
// - implements serde.FormatEngine
type Format struct {
	Msg  serde.Message
	Call *Call
	err  error
}

// NewBadFormat returns a format that always fails.
func NewBadFormat() Format {
	return Format{err: fakeErr}
}

// Encode implements serde.FormatEngine.
func (f Format) Encode(ctx serde.Context, m serde.Message) ([]byte, error) {
	f.Call.Add(ctx, m)

	if f.err != nil {
		return nil, f.err
	}

	return GetFakeFormatValue(), nil
}

// Decode implements serde.FormatEngine.
func (f Format) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	f.Call.Add(ctx, data)

	return f.Msg, f.err
}

// ContextEngine is a fake context engine backed by the JSON encoding. It can
// be configured to return errors.
//
// - implements serde.ContextEngine
type ContextEngine struct {
	Format serde.Format
	err    error
}

// NewContext returns a context of the good format.
func NewContext() serde.Context {
	return serde.NewContext(ContextEngine{Format: GoodFormat})
}

// NewContextWithFormat returns a context of the given format.
func NewContextWithFormat(f serde.Format) serde.Context {
	return serde.NewContext(ContextEngine{Format: f})
}

// NewBadContext returns a context of the bad format that fails to marshal and
// unmarshal.
func NewBadContext() serde.Context {
	return serde.NewContext(ContextEngine{Format: BadFormat, err: fakeErr})
}

// GetFormat implements serde.ContextEngine.
func (ctx ContextEngine) GetFormat() serde.Format {
	return ctx.Format
}

// Marshal implements serde.ContextEngine.
func (ctx ContextEngine) Marshal(m interface{}) ([]byte, error) {
	if ctx.err != nil {
		return nil, ctx.err
	}

	return json.Marshal(m)
}

// Unmarshal implements serde.ContextEngine.
func (ctx ContextEngine) Unmarshal(data []byte, m interface{}) error {
	if ctx.err != nil {
		return ctx.err
	}

	return json.Unmarshal(data, m)
}

// Signature is a fake signature that can fail to marshal.
//
// - implements crypto.Signature
type Signature struct {
	crypto.Signature
	err error
}

// NewBadSignature returns a signature that fails to marshal.
func NewBadSignature() Signature {
	return Signature{err: fakeErr}
}

// Equal implements crypto.Signature.
func (s Signature) Equal(o crypto.Signature) bool {
	other, ok := o.(Signature)
	return ok && other.err == s.err
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s Signature) MarshalBinary() ([]byte, error) {
	return []byte("fake signature"), s.err
}

// Serialize implements serde.Message.
func (s Signature) Serialize(serde.Context) ([]byte, error) {
	return GetFakeFormatValue(), s.err
}

// PublicKey is a fake public key that verifies any signature unless it is
// configured with an error.
//
// - implements crypto.PublicKey
type PublicKey struct {
	crypto.PublicKey
	err error
}

// NewBadPublicKey returns a public key that rejects every signature.
func NewBadPublicKey() PublicKey {
	return PublicKey{err: fakeErr}
}

// Verify implements crypto.PublicKey.
func (pk PublicKey) Verify([]byte, crypto.Signature) error {
	return pk.err
}

// Equal implements crypto.PublicKey.
func (pk PublicKey) Equal(other interface{}) bool {
	o, ok := other.(PublicKey)
	return ok && o.err == pk.err
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (pk PublicKey) MarshalBinary() ([]byte, error) {
	return []byte("fake public key"), pk.err
}

// MarshalText implements encoding.TextMarshaler.
func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte("fake public key"), pk.err
}

// Serialize implements serde.Message.
func (pk PublicKey) Serialize(serde.Context) ([]byte, error) {
	return GetFakeFormatValue(), pk.err
}

// String implements fmt.Stringer.
func (pk PublicKey) String() string {
	return "fake.PublicKey"
}

// Signer is a fake signer that can fail to sign.
//
// - implements crypto.Signer
type Signer struct {
	crypto.Signer
	err error
}

// NewBadSigner returns a signer that fails to sign.
func NewBadSigner() Signer {
	return Signer{err: fakeErr}
}

// GetPublicKey implements crypto.Signer.
func (s Signer) GetPublicKey() crypto.PublicKey {
	return PublicKey{}
}

// Sign implements crypto.Signer.
func (s Signer) Sign([]byte) (crypto.Signature, error) {
	return Signature{}, s.err
}
