package main_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestCMSAuth(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "CMSAuth Suite")
}
