package domain

// AnswerCost is the fixed amount of mana debited from a user to add an
// answer to a multi-answer contract. It seeds the new answer's pool.
const AnswerCost = 50.0

// MaxAnswers caps the number of unresolved answers on a multi-answer
// contract. Sum-to-one contracts get half the cap because every answer added
// requires rebalancing all the others.
const MaxAnswers = 100

// MaxGroupsPerMarket caps topic tags per contract.
const MaxGroupsPerMarket = 10

// MaximumAnswers returns the unresolved-answer cap for a contract.
func MaximumAnswers(shouldAnswersSumToOne bool) int {
	if shouldAnswersSumToOne {
		return MaxAnswers / 2
	}
	return MaxAnswers
}
