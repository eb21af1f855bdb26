// Package blockcipher encrypts short messages under a session key with a
// block cipher in ECB mode and PKCS#7 padding.
//
// There is no integrity protection. Decrypting with the wrong key succeeds and
// yields garbled bytes of the same padded length class; only the key's
// correctness distinguishes a real plaintext from noise. When the recovered
// padding is malformed, as it usually is under a wrong key, Decrypt returns
// the whole decrypted buffer instead of failing.
//
// The default algorithm is DES, whose 8-byte key matches the default session
// key length. AES-128 and Blowfish are available for longer keys.
package blockcipher
