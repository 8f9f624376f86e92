package json

import (
	"testing"
	"time"

	"github.com/cth001/exonum/core/ordering/types"
	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/crypto"
	"github.com/cth001/exonum/crypto/ed25519"
	_ "github.com/cth001/exonum/crypto/ed25519/json"
	"github.com/cth001/exonum/internal/testing/fake"
	"github.com/cth001/exonum/serde"
	"github.com/stretchr/testify/require"
)

func TestSignedFormat_Encode(t *testing.T) {
	format := signedFormat{}
	ctx := fake.NewContextWithFormat(serde.FormatJSON)

	verified, err := types.Sign(ed25519.NewSigner(), []byte("ping"))
	require.NoError(t, err)

	data, err := format.Encode(ctx, verified.Raw())
	require.NoError(t, err)
	re := `{"Payload":"cGluZw==","Author":{"Name":"CURVE-ED25519","Data":"[^"]+"},` +
		`"Signature":{"Name":"CURVE-ED25519","Data":"[^"]+"}}`
	require.Regexp(t, re, string(data))

	_, err = format.Encode(ctx, fake.Message{})
	require.EqualError(t, err, "unsupported message of type 'fake.Message'")

	_, err = format.Encode(ctx, types.SignedMessage{})
	require.EqualError(t, err, "missing author or signature")

	msg := types.NewSignedMessage(nil, fake.NewBadPublicKey(), fake.Signature{})
	_, err = format.Encode(ctx, msg)
	require.EqualError(t, err, fake.Err("couldn't serialize author"))

	msg = types.NewSignedMessage(nil, fake.PublicKey{}, fake.NewBadSignature())
	_, err = format.Encode(ctx, msg)
	require.EqualError(t, err, fake.Err("couldn't serialize signature"))

	msg = types.NewSignedMessage(nil, fake.PublicKey{}, fake.Signature{})
	_, err = format.Encode(fake.NewBadContext(), msg)
	require.EqualError(t, err, fake.Err("couldn't marshal"))
}

func TestSignedFormat_Decode(t *testing.T) {
	format := signedFormat{}
	ctx := makeContext()

	signer := ed25519.NewSigner()

	verified, err := types.Sign(signer, []byte("ping"))
	require.NoError(t, err)

	data, err := format.Encode(ctx, verified.Raw())
	require.NoError(t, err)

	msg, err := format.Decode(ctx, data)
	require.NoError(t, err)

	signed := msg.(types.SignedMessage)
	require.Equal(t, []byte("ping"), signed.GetPayload())

	again, err := signed.Verify()
	require.NoError(t, err)
	require.True(t, signer.GetPublicKey().Equal(again.Author()))

	_, err = format.Decode(fake.NewBadContext(), data)
	require.EqualError(t, err, fake.Err("couldn't unmarshal signed message"))

	bare := fake.NewContextWithFormat(serde.FormatJSON)

	_, err = format.Decode(bare, data)
	require.EqualError(t, err, "invalid public key factory '<nil>'")

	bare = serde.WithFactory(bare, types.PublicKeyKey{}, ed25519.NewPublicKeyFactory())

	_, err = format.Decode(bare, data)
	require.EqualError(t, err, "invalid signature factory '<nil>'")

	_, err = format.Decode(ctx, []byte(`{"Author":{"Data":"AAA="}}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "couldn't deserialize author: ")

	author, err := signer.GetPublicKey().Serialize(ctx)
	require.NoError(t, err)

	_, err = format.Decode(ctx, []byte(`{"Author":`+string(author)+`,"Signature":{"Name":"RSA"}}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "couldn't deserialize signature: ")
}

func TestPrecommitFormat(t *testing.T) {
	format := precommitFormat{}
	ctx := makeContext()

	p := types.NewPrecommit(2, 10, 1, hashtree.Digest{1}, hashtree.Digest{2}, time.Unix(1600000000, 5))

	data, err := format.Encode(ctx, p)
	require.NoError(t, err)
	require.Regexp(t, `{"Validator":2,"Height":10,"Round":1,"ProposeHash":"01[0-9a-f]{62}",`+
		`"BlockHash":"02[0-9a-f]{62}","Time":"2020-09-13T12:26:40.000000005Z"}`, string(data))

	msg, err := format.Decode(ctx, data)
	require.NoError(t, err)
	require.Equal(t, p, msg)

	_, err = format.Encode(ctx, fake.Message{})
	require.EqualError(t, err, "unsupported message of type 'fake.Message'")

	_, err = format.Encode(fake.NewBadContext(), p)
	require.EqualError(t, err, fake.Err("couldn't marshal"))

	_, err = format.Decode(fake.NewBadContext(), data)
	require.EqualError(t, err, fake.Err("couldn't unmarshal precommit"))
}

func TestBlockFormat(t *testing.T) {
	format := blockFormat{}
	ctx := makeContext()

	block, err := types.NewBlock(3,
		types.WithProposer(1),
		types.WithTransactions(2, hashtree.Digest{1}),
		types.WithPrevHash(hashtree.Digest{2}),
		types.WithStateHash(hashtree.Digest{3}))
	require.NoError(t, err)

	data, err := format.Encode(ctx, block)
	require.NoError(t, err)
	require.Regexp(t, `{"Proposer":1,"Height":3,"TxCount":2,"PrevHash":"02[0-9a-f]+",`+
		`"TxHash":"01[0-9a-f]+","StateHash":"03[0-9a-f]+","ErrorHash":"0{64}"}`, string(data))

	msg, err := format.Decode(ctx, data)
	require.NoError(t, err)
	require.Equal(t, block, msg)

	sha3 := serde.WithFactory(ctx, types.BlockKey{},
		types.NewBlockFactory(crypto.NewHashFactory(crypto.Sha3_256)))

	msg, err = format.Decode(sha3, data)
	require.NoError(t, err)
	require.NotEqual(t, block.GetHash(), msg.(types.Block).GetHash())

	_, err = format.Encode(ctx, fake.Message{})
	require.EqualError(t, err, "unsupported message of type 'fake.Message'")

	_, err = format.Encode(fake.NewBadContext(), block)
	require.EqualError(t, err, fake.Err("couldn't marshal"))

	_, err = format.Decode(fake.NewBadContext(), data)
	require.EqualError(t, err, fake.Err("couldn't unmarshal block"))

	_, err = format.Decode(fake.NewContextWithFormat(serde.FormatJSON), data)
	require.EqualError(t, err, "invalid block factory '<nil>'")

	bad := serde.WithFactory(ctx, types.BlockKey{},
		types.NewBlockFactory(fake.NewHashFactory(fake.NewBadHash())))

	_, err = format.Decode(bad, data)
	require.EqualError(t, err,
		fake.Err("couldn't create block: fingerprint failed: couldn't write header"))
}

// -----------------------------------------------------------------------------
// Utility functions

func makeContext() serde.Context {
	ctx := fake.NewContextWithFormat(serde.FormatJSON)
	ctx = serde.WithFactory(ctx, types.PublicKeyKey{}, ed25519.NewPublicKeyFactory())
	ctx = serde.WithFactory(ctx, types.SignatureKey{}, ed25519.NewSignatureFactory())
	ctx = serde.WithFactory(ctx, types.BlockKey{}, types.NewBlockFactory())

	return ctx
}
