package refcache

import "testing"

func TestMarkReferenceOnce(t *testing.T) {
	c := New()
	if !c.MarkReferenceOnce("hash1") {
		t.Fatal("expected first mark to succeed")
	}
	if c.MarkReferenceOnce("hash1") {
		t.Fatal("expected second mark to be a no-op")
	}
	if !c.MarkReferenceOnce("hash2") {
		t.Fatal("expected a different hash to mark independently")
	}
}

func TestPutAndLookup(t *testing.T) {
	c := New()
	name := "Gold"
	c.PutNFT("hash1", Metadata{AppID: "n/hash1/vk", Name: &name})

	m, ok := c.Lookup("hash1")
	if !ok {
		t.Fatal("expected lookup to find the NFT metadata")
	}
	if m.Name == nil || *m.Name != "Gold" {
		t.Fatalf("unexpected metadata: %+v", m)
	}

	if _, ok := c.Lookup("missing"); ok {
		t.Fatal("expected lookup miss for unknown hash")
	}
}
