package blockcipher

// pad appends PKCS#7 padding to data. A full block of padding is added when
// data is already block aligned.
func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	out := make([]byte, len(data), len(data)+n)
	copy(out, data)
	for i := 0; i < n; i++ {
		out = append(out, byte(n))
	}
	return out
}

// unpad strips PKCS#7 padding from data. ok is false, and data is returned
// unchanged, if the padding is malformed.
func unpad(data []byte, blockSize int) (out []byte, ok bool) {
	if len(data) == 0 {
		return data, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return data, false
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return data, false
		}
	}
	return data[:len(data)-n], true
}
