package ed25519

import "fmt"

func ExampleNewSignerFromBytes() {
	signer := NewSigner().(Signer)

	data, err := signer.MarshalBinary()
	if err != nil {
		panic("failed to marshal signer: " + err.Error())
	}

	// The key file of a validator holds the marshaled signer.
	restored, err := NewSignerFromBytes(data)
	if err != nil {
		panic("failed to restore signer: " + err.Error())
	}

	message := []byte("block hash")

	signature, err := restored.Sign(message)
	if err != nil {
		panic("signer failed: " + err.Error())
	}

	err = signer.GetPublicKey().Verify(message, signature)
	if err != nil {
		panic("invalid signature: " + err.Error())
	}

	fmt.Println("Success")

	// Output: Success
}
