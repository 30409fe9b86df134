package pubsub

import "testing"

func TestTopicResourceName(t *testing.T) {
	c := &Client{projectID: "storefront-prod"}
	cases := map[string]string{
		"orders":                        "projects/storefront-prod/topics/orders",
		" orders ":                      "projects/storefront-prod/topics/orders",
		"projects/other/topics/coupons": "projects/other/topics/coupons",
		"":                              "",
	}
	for in, want := range cases {
		if got := c.topicResourceName(in); got != want {
			t.Fatalf("topicResourceName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPublishWithoutClientFails(t *testing.T) {
	var c *Client
	if c.publisher("orders") != nil {
		t.Fatal("nil client must not return a publisher")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close nil client: %v", err)
	}
}
