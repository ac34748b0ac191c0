package shop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateReportsFirstMissingField(t *testing.T) {
	testCases := []struct {
		name    string
		product Product
		wantErr string
	}{
		{name: "missing id", product: Product{Name: "n", Description: "d", ImageURL: "i", LinkURL: "l"}, wantErr: "missing id"},
		{name: "missing name", product: Product{Description: "d", ImageURL: "i", LinkURL: "l", ID: "x"}, wantErr: "missing name"},
		{name: "missing description", product: Product{Name: "n", ImageURL: "i", LinkURL: "l", ID: "x"}, wantErr: "missing description"},
		{name: "missing image url", product: Product{Name: "n", Description: "d", LinkURL: "l", ID: "x"}, wantErr: "missing image_url"},
		{name: "missing link url", product: Product{Name: "n", Description: "d", ImageURL: "i", ID: "x"}, wantErr: "missing link_url"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			err := testCase.product.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), testCase.wantErr)
		})
	}
}

func TestValidateComplete(t *testing.T) {
	p := Product{Name: "n", Description: "d", ImageURL: "i", LinkURL: "l", ID: "x"}
	assert.NoError(t, p.Validate())
}

func TestCoerceProductPrefersCanonicalFields(t *testing.T) {
	p, err := CoerceProduct(map[string]any{
		"name": "n", "description": "d", "id": "x",
		"image_url": "canonical-img", "img_url": "legacy-img",
		"link_url": "canonical-link", "url": "legacy-link",
	})

	require.NoError(t, err)
	assert.Equal(t, "canonical-img", p.ImageURL)
	assert.Equal(t, "canonical-link", p.LinkURL)
}

func TestResultPayloadKeyIsContentIdentity(t *testing.T) {
	products := []Product{{ID: "p1"}, {ID: "p2"}}

	withIntro := ResultPayload{IntroText: "here you go", Products: products}
	without := ResultPayload{Products: products}
	assert.Equal(t, without.Key(), withIntro.Key())

	other := ResultPayload{Products: []Product{{ID: "p3"}}}
	assert.NotEqual(t, without.Key(), other.Key())

	emptyA := ResultPayload{IntroText: "nothing found"}
	emptyB := ResultPayload{IntroText: "try again"}
	assert.NotEqual(t, emptyA.Key(), emptyB.Key())
}

func TestCoerceProductIgnoresNonStringValues(t *testing.T) {
	_, err := CoerceProduct(map[string]any{
		"name": "n", "description": "d", "image_url": "i", "link_url": "l", "id": 42,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing id")
}
