package cli

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/config"
	"github.com/xraph/fundme/oracle"
)

func TestDeployFundWithdraw(t *testing.T) {
	dir := isolate(t)

	out, err := execute(t, dir, "deploy")
	require.NoError(t, err)
	assert.Contains(t, out, "Local network detected, using mock price feed "+oracle.DefaultMockAddress)
	assert.Contains(t, out, "Deployed FundMe fund_")
	assert.Contains(t, out, "minimum:    $50.00")

	out, err = execute(t, dir, "fund", "--from", "0xalice", "--value", "0.05")
	require.NoError(t, err)
	assert.Contains(t, out, "Funding contract")
	assert.Contains(t, out, "Funded! 0.05 ETH ($100.00) from 0xalice")

	_, err = execute(t, dir, "fund", "--from", "0xbob", "--value", "0.01")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, errors.Is(err, fundme.ErrInsufficientContribution))

	out, err = execute(t, dir, "fund")
	require.NoError(t, err)
	assert.Contains(t, out, "Funded! 1 ETH ($2,000.00) from 0xowner")

	out, err = execute(t, dir, "status", "--format", "json")
	require.NoError(t, err)
	var status struct {
		Status string       `json:"status"`
		Data   StatusResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "1.05", status.Data.Balance)
	assert.Equal(t, "$2,100.00", status.Data.BalanceUSD)
	assert.Equal(t, "0xowner", status.Data.Owner)
	assert.Equal(t, oracle.DefaultMockAddress, status.Data.PriceFeed)
	require.Len(t, status.Data.Contributors, 2)
	assert.Equal(t, FunderSummary{Address: "0xalice", Amount: "0.05"}, status.Data.Contributors[0])

	_, err = execute(t, dir, "withdraw", "--from", "0xalice")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, errors.Is(err, fundme.ErrUnauthorized))

	out, err = execute(t, dir, "withdraw", "--cheap")
	require.NoError(t, err)
	assert.Contains(t, out, "Withdrew 1.05 ETH to 0xowner")
	assert.Contains(t, out, "copy_then_clear")

	out, err = execute(t, dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "balance:    0 ETH")
	assert.Contains(t, out, "contributors: 0 (0 order entries)")
}

func TestRepeatDeployReplacesRecord(t *testing.T) {
	dir := isolate(t)

	_, err := execute(t, dir, "deploy")
	require.NoError(t, err)
	first, err := config.LoadDeployments(dir + "/deployments.yaml")
	require.NoError(t, err)

	_, err = execute(t, dir, "deploy", "--owner", "0xother", "--minimum-usd", "10")
	require.NoError(t, err)
	second, err := config.LoadDeployments(dir + "/deployments.yaml")
	require.NoError(t, err)

	assert.NotEqual(t, first["hardhat"].FundID, second["hardhat"].FundID)
	assert.Equal(t, "0xother", second["hardhat"].Owner)
	assert.True(t, second["hardhat"].Mock)

	// 0.01 ETH is $20, above the new $10 minimum.
	_, err = execute(t, dir, "fund", "--from", "0xbob", "--value", "0.01")
	require.NoError(t, err)
}

func TestFundWithoutDeployment(t *testing.T) {
	dir := isolate(t)

	_, err := execute(t, dir, "fund")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, errors.Is(err, config.ErrNotDeployed))
}

func TestFundBadValue(t *testing.T) {
	dir := isolate(t)

	for _, args := range [][]string{
		{"fund", "--value", "lots"},
		{"fund", "--value", "1e10000000"},
		{"fund", "--wei", "115792089237316195423570985008687907853269984665640564039457584007913129639936"},
	} {
		_, err := execute(t, dir, args...)
		require.Error(t, err, args)
		assert.Equal(t, ExitCommandError, GetExitCode(err), args)
	}
}

func TestPriceOnDevelopmentNetwork(t *testing.T) {
	dir := isolate(t)

	out, err := execute(t, dir, "price")
	require.NoError(t, err)
	assert.Contains(t, out, "ETH/USD 2000.00000000")
	assert.Contains(t, out, "1 ETH = $2,000.00")
}

func TestPriceNeedsFeedURL(t *testing.T) {
	dir := isolate(t)
	t.Setenv("FUNDME_PRICE_FEED_URL", "")

	_, err := execute(t, dir, "price", "--network", "sepolia")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
