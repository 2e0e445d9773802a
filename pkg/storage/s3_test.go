package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtensionFor(t *testing.T) {
	ext, ok := ExtensionFor(ProofTypes, " Application/PDF ")
	assert.True(t, ok)
	assert.Equal(t, ".pdf", ext)

	_, ok = ExtensionFor(ImageTypes, "application/pdf")
	assert.False(t, ok)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "banners/ev1/abc.png", BannerKey("ev1", "abc", ".png"))
	key := PaymentProofKey("ev1", "reg1", ".jpg")
	assert.Equal(t, "payment-proofs/ev1/reg1.jpg", key)

	assert.True(t, IsPaymentProofKey(key, "ev1", "reg1"))
	assert.False(t, IsPaymentProofKey(key, "ev1", "reg2"))
	assert.False(t, IsPaymentProofKey("payment-proofs/ev1/reg1.exe", "ev1", "reg1"))
	assert.False(t, IsPaymentProofKey("payment-proofs/ev1/reg1/../../x.jpg", "ev1", "reg1"))
}

func TestPublicObjectURL(t *testing.T) {
	aws := &S3{cfg: S3Config{Region: "ap-south-1", UploadsBucket: "felicity"}}
	assert.Equal(t, "https://felicity.s3.ap-south-1.amazonaws.com/banners/a.png", aws.PublicObjectURL("banners/a.png"))

	minio := &S3{cfg: S3Config{Endpoint: "http://localhost:9000/", UploadsBucket: "felicity"}}
	assert.Equal(t, "http://localhost:9000/felicity/banners/a.png", minio.PublicObjectURL("banners/a.png"))
}
